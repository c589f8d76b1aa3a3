package chat

import (
	"strings"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes bounds an attached image.
const MaxImageBytes = 10 << 20

// NewAttachment sniffs data and accepts it only if it is an image.
func NewAttachment(name string, data []byte) (*models.Attachment, error) {
	const op = "chat.NewAttachment"
	if len(data) == 0 {
		return nil, errs.Validation(op, "attachment %q is empty", name)
	}
	if len(data) > MaxImageBytes {
		return nil, errs.Validation(op, "attachment %q is larger than %d MB", name, MaxImageBytes>>20)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, errs.Validation(op, "attachment %q is %s, not an image", name, mt.String())
	}
	return &models.Attachment{
		Name:     name,
		MIMEType: mt.String(),
		Size:     len(data),
		Data:     data,
	}, nil
}

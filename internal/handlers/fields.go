package handlers

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/services"
	"github.com/gofiber/fiber/v2"
)

// formFields holds the request fields that were present in the body. A nil
// value means the field was sent as an explicit JSON null.
type formFields map[string]*string

var taskFieldNames = []string{"name", "description", "completed", "gps_coordinates", "_method"}

// readFields accepts either a JSON object or a form body and keeps only the
// named keys. Unknown keys are ignored.
func readFields(c *fiber.Ctx, names []string) (formFields, error) {
	fields := formFields{}

	if c.Is("json") {
		raw := map[string]interface{}{}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&raw); err != nil {
				return nil, err
			}
		}
		for _, name := range names {
			v, ok := raw[name]
			if !ok {
				continue
			}
			s, err := scalarString(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields[name] = s
		}
		return fields, nil
	}

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if values, ok := form.Value[name]; ok && len(values) > 0 {
				v := values[0]
				fields[name] = &v
			}
		}
		return fields, nil
	}

	args := c.Request().PostArgs()
	for _, name := range names {
		if args.Has(name) {
			v := string(args.Peek(name))
			fields[name] = &v
		}
	}
	return fields, nil
}

func scalarString(v interface{}) (*string, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s = t
	case bool:
		s = strconv.FormatBool(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
	return &s, nil
}

// has reports whether the field was present at all, even as null.
func (f formFields) has(name string) bool {
	_, ok := f[name]
	return ok
}

func (f formFields) text(name string) string {
	if v := f[name]; v != nil {
		return *v
	}
	return ""
}

// boolean parses the boolean forms HTML forms and JSON clients send. ok is
// false when the value is present but not a boolean.
func (f formFields) boolean(name string) (value *bool, ok bool) {
	v, present := f[name]
	if !present || v == nil {
		return nil, true
	}
	switch strings.ToLower(strings.TrimSpace(*v)) {
	case "1", "true", "on", "yes":
		b := true
		return &b, true
	case "0", "false", "off", "no", "":
		b := false
		return &b, true
	}
	return nil, false
}

// optional returns the field as a pointer, mapping explicit null to an empty
// string so the service clears the column.
func (f formFields) optional(name string) *string {
	v, ok := f[name]
	if !ok {
		return nil
	}
	if v == nil {
		empty := ""
		return &empty
	}
	return v
}

// uploadedFile reads the named multipart file into memory. It returns nil
// when the request carries no such file.
func uploadedFile(c *fiber.Ctx, name string) (*services.UploadedFile, error) {
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	header, err := c.FormFile(name)
	if err != nil {
		return nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	return &services.UploadedFile{
		Data:         data,
		OriginalName: header.Filename,
		ContentType:  header.Header.Get(fiber.HeaderContentType),
	}, nil
}

package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"

	"github.com/google/uuid"

	"peerhub/internal/blob"
	"peerhub/internal/emailer"
	"peerhub/pkg/domain"
)

// crashTextFields are sent in clear; every other field of a crash report is
// a base64 encoded attachment.
var crashTextFields = map[string]bool{"platform": true, "version": true, "user": true, "email": true}

// CrashReport archives the attachments of a client crash and mails them to
// the crash recipient. The dump attachment is symbolized when possible.
// It returns the identifier of the report.
func (s *Service) CrashReport(ctx context.Context, fields map[string]string) (string, error) {
	vars := map[string]any{}
	files := map[string][]byte{}
	for name, value := range fields {
		if crashTextFields[name] {
			vars[name] = value
			continue
		}
		if name == "" || path.Base(name) != name {
			return "", domain.InvalidFormatError{Entity: domain.EntityCrashReport, Field: name, Reason: "invalid attachment name"}
		}
		data, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", domain.InvalidFormatError{Entity: domain.EntityCrashReport, Field: name, Reason: err.Error()}
		}
		files[name] = data
	}
	if dump, ok := files["dump"]; ok && s.symbolizer != nil {
		symbolized, err := s.symbolizer.Symbolize(ctx, dump)
		if err != nil {
			s.logger.Warn().Err(err).Msg("crash dump symbolization failed")
		} else {
			files["dump"] = symbolized
		}
	}

	id := uuid.NewString()
	vars["id"] = id
	attachments := make([]emailer.Attachment, 0, len(files))
	for _, name := range sortedKeys(files) {
		attachments = append(attachments, emailer.Attachment{Name: "client." + name, Content: files[name]})
		if s.reports == nil {
			continue
		}
		key := fmt.Sprintf("crash-reports/%s/client.%s", id, name)
		opts := blob.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"report": id}}
		if _, err := s.reports.Put(ctx, key, bytes.NewReader(files[name]), opts); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("crash report archive failed")
		}
	}
	s.notify(ctx, emailer.Message{
		Template:    emailer.TemplateCrashReport,
		To:          emailer.Recipient{Email: s.settings.CrashRecipient},
		Variables:   vars,
		Attachments: attachments,
	})
	s.logger.Info().Str("report", id).Int("attachments", len(attachments)).Msg("crash report received")
	return id, nil
}

// CrashReportFiles lists the archived attachments of a report.
func (s *Service) CrashReportFiles(ctx context.Context, id string) ([]blob.Info, error) {
	if s.reports == nil {
		return nil, domain.NotFoundError{Entity: domain.EntityCrashReport, Name: id}
	}
	infos, err := s.reports.List(ctx, "crash-reports/"+id+"/")
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, domain.NotFoundError{Entity: domain.EntityCrashReport, Name: id}
	}
	return infos, nil
}

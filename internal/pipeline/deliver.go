package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/review-pulse/internal/config"
	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/report"
	"github.com/sells-group/review-pulse/pkg/notion"
	"github.com/sells-group/review-pulse/pkg/resend"
)

// DeliveryResult records where a pulse was published. Delivery failures
// never roll back the persisted pulse; they are collected here so the
// caller can surface them without failing the run.
type DeliveryResult struct {
	EmailID      string
	NotionPageID string
	Errors       []string
}

// Delivered reports whether at least one channel accepted the pulse.
func (d DeliveryResult) Delivered() bool {
	return d.EmailID != "" || d.NotionPageID != ""
}

// DeliverPhase publishes the pulse to every configured channel: email via
// Resend and a Notion page under the configured parent. Channels without
// configuration are skipped silently; configured channels that fail are
// recorded and logged.
func DeliverPhase(
	ctx context.Context,
	mailer resend.Client,
	pages notion.Client,
	emailCfg config.EmailConfig,
	notionCfg config.NotionConfig,
	product string,
	summary model.PulseSummary,
) DeliveryResult {
	log := zap.L().With(zap.String("phase", "deliver"))
	var res DeliveryResult

	if mailer != nil && len(emailCfg.To) > 0 {
		sent, err := mailer.Send(ctx, resend.Email{
			From:    emailCfg.From,
			To:      emailCfg.To,
			Subject: report.Subject(product, summary),
			HTML:    report.HTMLBody(product, summary),
			Text:    report.TextBody(product, summary),
		})
		if err != nil {
			log.Warn("deliver: email failed", zap.Error(err))
			res.Errors = append(res.Errors, "email: "+err.Error())
		} else {
			log.Info("deliver: email sent", zap.String("message_id", sent.ID), zap.Int("recipients", len(emailCfg.To)))
			res.EmailID = sent.ID
		}
	}

	if pages != nil && notionCfg.ParentPage != "" {
		page, err := pages.CreatePage(ctx, report.NotionPageRequest(notionCfg.ParentPage, product, summary))
		if err != nil {
			log.Warn("deliver: notion page failed", zap.Error(err))
			res.Errors = append(res.Errors, "notion: "+err.Error())
		} else {
			log.Info("deliver: notion page created", zap.String("page_id", string(page.ID)))
			res.NotionPageID = string(page.ID)
		}
	}

	return res
}

package alerting

import (
	"fmt"
	"strings"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/notification"
)

// Default templates used when a deployment does not override them.
const (
	defaultTitleTemplate = "Flood risk {{risk_level}} for region {{region_id}} ({{horizon}} outlook)"
	defaultBodyTemplate  = "Flood risk for region {{region_id}} is {{risk_level}} over the next {{horizon}} " +
		"(probability {{probability}}, confidence {{confidence}}). " +
		"You receive this because your alert threshold is {{threshold}}."
)

// RenderMessage builds the notification payload for an alert event by
// substituting template variables from the triggering prediction and the
// subscription.
func RenderMessage(event *entities.AlertEvent) notification.Message {
	return notification.Message{
		Title: renderTemplate(defaultTitleTemplate, event),
		Body:  renderTemplate(defaultBodyTemplate, event),
	}
}

func renderTemplate(tmpl string, event *entities.AlertEvent) string {
	pred := &event.Prediction
	pairs := []string{
		"{{risk_level}}", pred.RiskLevel.String(),
		"{{region_id}}", fmt.Sprintf("%d", pred.RegionID),
		"{{horizon}}", string(pred.Horizon),
		"{{probability}}", fmt.Sprintf("%.0f%%", pred.Probability*100),
		"{{confidence}}", fmt.Sprintf("%.0f%%", pred.Confidence*100),
		"{{threshold}}", event.Subscription.Threshold.String(),
		"{{channel}}", event.Channel,
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// HTTPRemediator posts remediation requests to an external remediation
// actor (e.g. the agent supervising the polling terminals).
type HTTPRemediator struct {
	http *resty.Client
}

// NewHTTPRemediator builds a remediation client for the given base URL.
func NewHTTPRemediator(baseURL string) *HTTPRemediator {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	return &HTTPRemediator{http: httpClient}
}

type remediationRequest struct {
	Group     string `json:"group"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id"`
}

// TriggerRemediation issues a single idempotent remediation call.
// A 409 means one is already in flight and counts as rejected.
func (r *HTTPRemediator) TriggerRemediation(ctx context.Context, group, reason string) (bool, error) {
	requestID := uuid.NewString()

	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(remediationRequest{Group: group, Reason: reason, RequestID: requestID}).
		Post("/remediations")
	if err != nil {
		return false, fmt.Errorf("remediation call failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted:
		logger.WithFields(map[string]interface{}{
			"component":  "HTTPRemediator",
			"group":      group,
			"request_id": requestID,
		}).Info("Remediation accepted")
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("remediation rejected with HTTP %d: %s", resp.StatusCode(), resp.String())
	}
}

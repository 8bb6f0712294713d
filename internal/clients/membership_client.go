// internal/clients/membership_client.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
	"shepherd/internal/pkg/telemetry"
)

// MembershipClient reads the member directory from the membership service.
// Calls are authorised with a short-lived viewer token for the church being
// queried.
type MembershipClient struct {
	baseURL string
	http    *http.Client
	issuer  *auth.Issuer
}

func NewMembershipClient(baseURL string, issuer *auth.Issuer) *MembershipClient {
	return &MembershipClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		issuer:  issuer,
	}
}

// MembersByEnvelope lists every member of churchID holding envelope.
func (c *MembershipClient) MembersByEnvelope(ctx context.Context, churchID uuid.UUID, envelope string) ([]analytics.Person, error) {
	endpoint := fmt.Sprintf("%s/api/members?envelope=%s", c.baseURL, url.QueryEscape(envelope))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	token, _, err := c.issuer.Issue(auth.Scope{ChurchID: churchID, Role: auth.RoleViewer}, "")
	if err != nil {
		return nil, fmt.Errorf("service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	telemetry.Inject(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var members []analytics.Person
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return members, nil
}

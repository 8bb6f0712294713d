package giving

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
)

type stubService struct {
	Service
	gotFilter GiftFilter
	gotInput  GiftInput
	err       error
}

func (s *stubService) ListGifts(_ context.Context, _ auth.Scope, f GiftFilter) ([]analytics.GivingRecord, error) {
	s.gotFilter = f
	return []analytics.GivingRecord{}, s.err
}

func (s *stubService) RecordGift(_ context.Context, _ auth.Scope, in GiftInput) (*analytics.GivingRecord, error) {
	s.gotInput = in
	if s.err != nil {
		return nil, s.err
	}
	return &analytics.GivingRecord{ID: uuid.New(), MemberID: in.MemberID}, nil
}

func (s *stubService) DeleteGift(context.Context, auth.Scope, uuid.UUID) error { return s.err }

func serve(t *testing.T, svc Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req = req.WithContext(auth.WithScope(req.Context(), auth.Scope{ChurchID: uuid.New(), Role: auth.RoleAdmin}))
	rec := httptest.NewRecorder()
	NewHandler(svc).Routes().ServeHTTP(rec, req)
	return rec
}

func TestListGifts_Endpoint(t *testing.T) {
	svc := &stubService{}
	member := uuid.New()
	rec := serve(t, svc, httptest.NewRequest(http.MethodGet,
		"/api/giving?startDate=2024-01-01&endDate=2024-12-31&memberId="+member.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, member, *svc.gotFilter.MemberID)
	assert.Equal(t, analytics.MustDate("2024-01-01"), svc.gotFilter.Range.Start)

	rec = serve(t, svc, httptest.NewRequest(http.MethodGet, "/api/giving?startDate=2024-01-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordGift_LegacyAmount(t *testing.T) {
	svc := &stubService{}
	member := uuid.New()
	body := `{"memberId":"` + member.String() + `","dateGiven":"2024-01-07","amount":25.50}`
	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/api/giving", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.gotInput.Amount)
	assert.Equal(t, "25.50", svc.gotInput.Amount.StringFixed(2))
	assert.Nil(t, svc.gotInput.Amounts)
}

func TestRecordGift_ErrorStatus(t *testing.T) {
	body := `{"memberId":"` + uuid.NewString() + `","dateGiven":"2024-01-07","amount":-5}`
	rec := serve(t, &stubService{err: ErrNegativeAmount}, httptest.NewRequest(http.MethodPost, "/api/giving", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot be negative")
}

func TestDeleteGift_Endpoint(t *testing.T) {
	rec := serve(t, &stubService{}, httptest.NewRequest(http.MethodDelete, "/api/giving/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, &stubService{err: ErrGiftNotFound}, httptest.NewRequest(http.MethodDelete, "/api/giving/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

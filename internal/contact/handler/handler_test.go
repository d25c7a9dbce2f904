package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"reconcile/internal/contact/handler/mocks"
	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/requestcontext"
	"reconcile/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) post(body any) *http.Request {
	return testutil.NewJSONRequest(s.T(), http.MethodPost, "/identify", body)
}

func (s *HandlerSuite) TestIdentifySuccess() {
	s.service.EXPECT().
		Identify(gomock.Any(), models.Hint{Email: "mcfly@hillvalley.edu", Phone: "123456"}).
		Return(&models.Summary{
			PrimaryID:    1,
			Emails:       []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"},
			PhoneNumbers: []string{"123456"},
			SecondaryIDs: []int64{23},
		}, nil)

	rr := testutil.DoRequest(s.router, s.post(map[string]string{
		"email":       "mcfly@hillvalley.edu",
		"phoneNumber": "123456",
	}))

	s.Equal(http.StatusOK, rr.Code)
	s.Equal("application/json", rr.Header().Get("Content-Type"))
	s.JSONEq(`{"contact":{
		"primaryContatctId":1,
		"emails":["lorraine@hillvalley.edu","mcfly@hillvalley.edu"],
		"phoneNumbers":["123456"],
		"secondaryContactIds":[23]
	}}`, rr.Body.String())
}

func (s *HandlerSuite) TestIdentifyPassesRequestScope() {
	at := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	s.service.EXPECT().Identify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ models.Hint) (*models.Summary, error) {
			s.Equal("req-7", requestcontext.RequestID(ctx))
			s.Equal(at, requestcontext.Now(ctx))
			return &models.Summary{PrimaryID: 1}, nil
		})

	req := s.post(map[string]string{"email": "doc@hillvalley.edu"})
	req = testutil.WithRequestTime(testutil.WithRequestID(req, "req-7"), at)
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusOK, rr.Code)
}

func (s *HandlerSuite) TestIdentifyEmptyListsAreArrays() {
	s.service.EXPECT().Identify(gomock.Any(), gomock.Any()).
		Return(&models.Summary{PrimaryID: 7, PhoneNumbers: []string{"555"}}, nil)

	rr := testutil.DoRequest(s.router, s.post(map[string]string{"phoneNumber": "555"}))

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"contact":{"primaryContatctId":7,"emails":[],"phoneNumbers":["555"],"secondaryContactIds":[]}}`, rr.Body.String())
}

func (s *HandlerSuite) TestIdentifyNormalizesInput() {
	tests := []struct {
		name string
		body map[string]any
		want models.Hint
	}{
		{
			name: "whitespace trimmed",
			body: map[string]any{"email": "  doc@hillvalley.edu ", "phoneNumber": " 111 "},
			want: models.Hint{Email: "doc@hillvalley.edu", Phone: "111"},
		},
		{
			name: "phone alias accepted",
			body: map[string]any{"phone": "222"},
			want: models.Hint{Phone: "222"},
		},
		{
			name: "phoneNumber wins over phone",
			body: map[string]any{"phone": "222", "phoneNumber": "333"},
			want: models.Hint{Phone: "333"},
		},
		{
			name: "null email ignored",
			body: map[string]any{"email": nil, "phoneNumber": "444"},
			want: models.Hint{Phone: "444"},
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().Identify(gomock.Any(), tt.want).Return(&models.Summary{PrimaryID: 1}, nil)

			rr := testutil.DoRequest(s.router, s.post(tt.body))
			s.Equal(http.StatusOK, rr.Code)
		})
	}
}

func (s *HandlerSuite) TestIdentifyRejectsInvalidRequests() {
	tests := []struct {
		name     string
		body     string
		wantCode string
		wantDesc string
	}{
		{name: "missing both", body: `{}`, wantCode: "validation_error", wantDesc: "either email or phoneNumber must be provided"},
		{name: "blank values", body: `{"email":"  ","phoneNumber":""}`, wantCode: "validation_error", wantDesc: "either email or phoneNumber must be provided"},
		{name: "numeric phone", body: `{"phoneNumber":123456}`, wantCode: "validation_error", wantDesc: "phoneNumber must be a string"},
		{name: "email object", body: `{"email":{"a":1}}`, wantCode: "validation_error", wantDesc: "email must be a string"},
		{name: "malformed email", body: `{"email":"not-an-email"}`, wantCode: "validation_error", wantDesc: "invalid email format"},
		{name: "malformed JSON", body: `{"email":`, wantCode: "bad_request", wantDesc: "invalid JSON body"},
		{name: "array body", body: `[]`, wantCode: "bad_request", wantDesc: "request body must be a JSON object"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRawRequest(s.T(), http.MethodPost, "/identify", tt.body))

			body := testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, tt.wantCode)
			s.Contains(body["error_description"], tt.wantDesc)
		})
	}
}

func (s *HandlerSuite) TestIdentifyServiceErrors() {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "store unavailable",
			err:        dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeUnavailable, "contact store unavailable"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "unavailable",
		},
		{
			name:       "inconsistent graph",
			err:        dErrors.New(dErrors.CodeInvariantViolation, "secondary contact links to a missing primary"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "invariant_violation",
		},
		{
			name:       "uncoded error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().Identify(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			rr := testutil.DoRequest(s.router, s.post(map[string]string{"email": "doc@hillvalley.edu"}))

			body := testutil.AssertStatusAndError(s.T(), rr, tt.wantStatus, tt.wantCode)
			s.NotContains(body, "error_description", "server errors must not leak details")
		})
	}
}

func (s *HandlerSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/health", nil))

	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[HealthResponse](s.T(), rr)
	s.Equal("OK", resp.Status)
	s.NotEmpty(resp.Message)
}

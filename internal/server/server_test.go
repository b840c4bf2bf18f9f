package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/capx-fi/finvest-miniapp/pkg/advisor"
	"github.com/capx-fi/finvest-miniapp/pkg/initdata"
	"github.com/capx-fi/finvest-miniapp/pkg/profile"
	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testBotSecret    = "botsecret"
	testClientID     = "client-123"
	testClientSecret = "clientsecret"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	relayer, err := initdata.NewRelayer(initdata.Config{
		BotSecret:    testBotSecret,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})
	require.NoError(t, err)

	s, err := New(zap.NewNop(), Config{ListenAddr: "127.0.0.1:0", ShutdownTimeout: time.Second}, relayer, opts...)
	require.NoError(t, err)
	return s, s.Handler()
}

func signedInitData() string {
	p := initdata.NewParams(
		initdata.Field{Key: "query_id", Value: "AAH"},
		initdata.Field{Key: "user", Value: `{"id":1,"first_name":"Ann"}`},
		initdata.Field{Key: "auth_date", Value: "1700000000"},
	)
	return initdata.SignParams(p, []byte(testBotSecret)).Encode()
}

func postJSON(t *testing.T, h http.Handler, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestVerify_Success(t *testing.T) {
	_, h := newTestServer(t)

	rec := postJSON(t, h, "/api/verify", initDataRequest{InitData: signedInitData()})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	resp := decode[verifyResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Message)

	relayed := initdata.ParseParams(resp.InitData)
	clientID, _ := relayed.Get(initdata.ClientIDKey)
	assert.Equal(t, testClientID, clientID)
	assert.NoError(t, initdata.Verify(relayed, []byte(testClientSecret)))
}

func TestVerify_Failures(t *testing.T) {
	_, h := newTestServer(t)

	tampered := strings.Replace(signedInitData(), "AAH", "AAX", 1)
	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{name: "missing hash", body: initDataRequest{InitData: "auth_date=1700000000"}, status: http.StatusUnauthorized, message: msgMissingHash},
		{name: "empty payload", body: initDataRequest{}, status: http.StatusUnauthorized, message: msgMissingHash},
		{name: "tampered", body: initDataRequest{InitData: tampered}, status: http.StatusUnauthorized, message: msgInvalidInitData},
		{name: "not json", body: "initData", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/verify", tt.body)
			require.Equal(t, tt.status, rec.Code)
			resp := decode[verifyResponse](t, rec)
			assert.False(t, resp.Success)
			assert.Empty(t, resp.InitData)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
		})
	}
}

type brokenRelayer struct{}

func (brokenRelayer) Relay(string) (string, error) {
	return "", initdata.ErrConfiguration
}

func TestVerify_ConfigurationError(t *testing.T) {
	s, err := New(zap.NewNop(), Config{}, brokenRelayer{})
	require.NoError(t, err)

	rec := postJSON(t, s.Handler(), "/api/verify", initDataRequest{InitData: signedInitData()})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[verifyResponse](t, rec)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
}

func TestVerify_MethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/verify", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type fakeUsers struct {
	relayed      string
	validToken   string
	refreshToken string
	session      userapi.Session
	faucetCalls  int
}

func (f *fakeUsers) Authenticate(_ context.Context, relayed string) (*userapi.Session, error) {
	f.relayed = relayed
	s := f.session
	s.AccessToken = f.validToken
	s.RefreshToken = f.refreshToken
	return &s, nil
}

func (f *fakeUsers) GetUser(_ context.Context, token string) (*userapi.Session, error) {
	if token != f.validToken {
		return nil, &userapi.StatusError{StatusCode: http.StatusUnauthorized}
	}
	s := f.session
	return &s, nil
}

func (f *fakeUsers) RefreshAccessToken(_ context.Context, refreshToken string) (string, error) {
	if refreshToken != f.refreshToken {
		return "", &userapi.StatusError{StatusCode: http.StatusUnauthorized}
	}
	return f.validToken, nil
}

func (f *fakeUsers) RequestFaucet(_ context.Context, token string) error {
	if token != f.validToken {
		return &userapi.StatusError{StatusCode: http.StatusUnauthorized}
	}
	f.faucetCalls++
	return nil
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		validToken:   "access-ok",
		refreshToken: "refresh-ok",
		session: userapi.Session{
			User: userapi.User{ID: "u1", Version: 1},
			SignupTx: &userapi.SignupTx{
				ContractAddress: "0x00000000000000000000000000000000000000aa",
				ContractABI:     json.RawMessage(`[]`),
			},
		},
	}
}

func TestAuth_RelaysAndSetsCookies(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users))

	rec := postJSON(t, h, "/api/auth", initDataRequest{InitData: signedInitData()})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[authResponse](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.User)
	assert.Equal(t, "u1", resp.User.ID)
	require.NotNil(t, resp.SignupTx)

	require.NoError(t, initdata.Verify(initdata.ParseParams(users.relayed), []byte(testClientSecret)))

	cookies := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c.Value
		assert.True(t, c.HttpOnly)
	}
	assert.Equal(t, "access-ok", cookies[accessTokenCookie])
	assert.Equal(t, "refresh-ok", cookies[refreshTokenCookie])
}

func TestAuth_RejectsBadSignature(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users))

	rec := postJSON(t, h, "/api/auth", initDataRequest{InitData: "auth_date=1&hash=00"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, users.relayed)
}

func TestAuth_NotConfigured(t *testing.T) {
	_, h := newTestServer(t)
	rec := postJSON(t, h, "/api/auth", initDataRequest{InitData: signedInitData()})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func getUser(h http.Handler, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetUser(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users))

	rec := getUser(h, &http.Cookie{Name: accessTokenCookie, Value: "access-ok"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", decode[authResponse](t, rec).User.ID)
}

func TestGetUser_RefreshesRejectedToken(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users))

	rec := getUser(h,
		&http.Cookie{Name: accessTokenCookie, Value: "stale"},
		&http.Cookie{Name: refreshTokenCookie, Value: "refresh-ok"},
	)
	require.Equal(t, http.StatusOK, rec.Code)

	var refreshed string
	for _, c := range rec.Result().Cookies() {
		if c.Name == accessTokenCookie {
			refreshed = c.Value
		}
	}
	assert.Equal(t, "access-ok", refreshed)
}

func TestGetUser_Unauthenticated(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users))

	assert.Equal(t, http.StatusUnauthorized, getUser(h).Code)
	assert.Equal(t, http.StatusUnauthorized, getUser(h, &http.Cookie{Name: accessTokenCookie, Value: "stale"}).Code)
}

func TestGetUser_FailedRefreshClearsCookies(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users))

	rec := getUser(h,
		&http.Cookie{Name: accessTokenCookie, Value: "stale"},
		&http.Cookie{Name: refreshTokenCookie, Value: "revoked"},
	)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
		cleared[c.Name] = true
	}
	assert.True(t, cleared[accessTokenCookie])
	assert.True(t, cleared[refreshTokenCookie])
}

type fakeProvisioner struct {
	prepareErr error
	waitErr    error
}

func (f *fakeProvisioner) Prepare(tx *userapi.SignupTx) (*profile.CreateProfileCall, error) {
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	return &profile.CreateProfileCall{
		ContractAddress: common.HexToAddress(tx.ContractAddress),
		Method:          "createProfile(uint256[],string[])",
		Selector:        "0x12345678",
		ChainID:         big.NewInt(10245),
	}, nil
}

func (f *fakeProvisioner) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(99)}, nil
}

func TestProfilePrepare(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users), WithProfileProvisioner(&fakeProvisioner{}))

	rec := postJSON(t, h, "/api/profile/prepare", struct{}{}, &http.Cookie{Name: accessTokenCookie, Value: "access-ok"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[prepareResponse](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Call)
	assert.Equal(t, "0x12345678", resp.Call.Selector)
	assert.Equal(t, 1, users.faucetCalls)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "inputParams")
	var call map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["call"], &call))
	for _, key := range []string{"contractAddress", "method", "selector", "chainId"} {
		assert.Contains(t, call, key)
	}
}

func TestProfilePrepare_AlreadyMinted(t *testing.T) {
	users := newFakeUsers()
	users.session.User.Version = userapi.ProfileVersion
	_, h := newTestServer(t, WithUserService(users), WithProfileProvisioner(&fakeProvisioner{}))

	rec := postJSON(t, h, "/api/profile/prepare", struct{}{}, &http.Cookie{Name: accessTokenCookie, Value: "access-ok"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, users.faucetCalls)
}

func TestProfilePrepare_InvalidSignupTx(t *testing.T) {
	users := newFakeUsers()
	prov := &fakeProvisioner{prepareErr: profile.ErrInvalidSignupTx}
	_, h := newTestServer(t, WithUserService(users), WithProfileProvisioner(prov))

	rec := postJSON(t, h, "/api/profile/prepare", struct{}{}, &http.Cookie{Name: accessTokenCookie, Value: "access-ok"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Zero(t, users.faucetCalls)
}

func TestProfileConfirm(t *testing.T) {
	users := newFakeUsers()
	_, h := newTestServer(t, WithUserService(users), WithProfileProvisioner(&fakeProvisioner{}))
	cookie := &http.Cookie{Name: accessTokenCookie, Value: "access-ok"}
	txHash := common.HexToHash("0x01").Hex()

	rec := postJSON(t, h, "/api/profile/confirm", confirmRequest{TxHash: txHash}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[confirmResponse](t, rec)
	assert.Equal(t, uint64(99), resp.BlockNumber)
	assert.Equal(t, "u1", resp.User.ID)

	rec = postJSON(t, h, "/api/profile/confirm", confirmRequest{TxHash: "0x12"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileConfirm_Reverted(t *testing.T) {
	users := newFakeUsers()
	prov := &fakeProvisioner{waitErr: profile.ErrTransactionFailed}
	_, h := newTestServer(t, WithUserService(users), WithProfileProvisioner(prov))

	rec := postJSON(t, h, "/api/profile/confirm", confirmRequest{TxHash: common.HexToHash("0x01").Hex()},
		&http.Cookie{Name: accessTokenCookie, Value: "access-ok"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type fakeAdvisor struct {
	req advisor.Request
	err error
}

func (f *fakeAdvisor) Advise(_ context.Context, req advisor.Request) (*advisor.Advice, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &advisor.Advice{Text: "Save more", RiskProfile: advisor.RiskProfileFor(req.CreditScore)}, nil
}

func adviceRequest(t *testing.T, fields map[string]string, csv string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if csv != "" {
		fw, err := mw.CreateFormFile("transactionFile", "transactions.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/financial-advice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const sampleCSV = "date,amount,category,type\n2024-01-01,50000,Salary,income\n2024-01-02,20000,Rent,expense\n"

func TestFinancialAdvice(t *testing.T) {
	adv := &fakeAdvisor{}
	_, h := newTestServer(t, WithAdvisor(adv))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adviceRequest(t, map[string]string{"cibilScore": "760", "financialGoals": "Retire"}, sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[adviceResponse](t, rec)
	assert.Equal(t, "Save more", resp.Advice)
	require.NotNil(t, resp.RiskProfile)
	assert.Equal(t, "Aggressive", resp.RiskProfile.Name)
	assert.Equal(t, 760, adv.req.CreditScore)
	assert.Len(t, adv.req.Transactions, 2)
}

func TestFinancialAdvice_BadInput(t *testing.T) {
	adv := &fakeAdvisor{}
	_, h := newTestServer(t, WithAdvisor(adv))

	tests := []struct {
		name   string
		fields map[string]string
		csv    string
		want   string
	}{
		{
			name:   "score out of range",
			fields: map[string]string{"cibilScore": "1000", "financialGoals": "Retire"},
			csv:    sampleCSV,
			want:   "Please enter a valid CIBIL score between 300 and 900.",
		},
		{
			name:   "no goals",
			fields: map[string]string{"cibilScore": "700", "financialGoals": " "},
			csv:    sampleCSV,
			want:   "Please enter your financial goals.",
		},
		{
			name:   "no file",
			fields: map[string]string{"cibilScore": "700", "financialGoals": "Retire"},
			want:   "Please upload a transaction file.",
		},
		{
			name:   "bad csv",
			fields: map[string]string{"cibilScore": "700", "financialGoals": "Retire"},
			csv:    "date,amount\n2024-01-01,5\n",
			want:   "Missing required columns: category, type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, adviceRequest(t, tt.fields, tt.csv))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode[adviceResponse](t, rec).Error)
		})
	}
}

func TestFinancialAdvice_GeneratorFailure(t *testing.T) {
	adv := &fakeAdvisor{err: errors.New("quota exceeded")}
	_, h := newTestServer(t, WithAdvisor(adv))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, adviceRequest(t, map[string]string{"cibilScore": "700", "financialGoals": "Retire"}, sampleCSV))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred while processing your request.", decode[adviceResponse](t, rec).Error)
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestServer(t)
	_ = postJSON(t, h, "/api/verify", initDataRequest{InitData: signedInitData()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `finvest_initdata_relay_total{outcome="relayed"} 1`)
	assert.Contains(t, rec.Body.String(), `finvest_api_requests_total{route="verify",status="200"} 1`)
}

func TestRequestIDOnEveryResponse(t *testing.T) {
	_, h := newTestServer(t)

	for _, path := range []string{"/healthz", "/metrics", "/nope"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
		assert.NoError(t, err, path)
	}

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(requestIDHeader))
}

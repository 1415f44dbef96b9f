package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	db "github.com/loyaltyworks/ledger/internal/db"
	model "github.com/loyaltyworks/ledger/internal/models"
	service "github.com/loyaltyworks/ledger/internal/services"
)

type allowAllGuard struct{}

func (allowAllGuard) CanAct(ctx context.Context, actor string, role string, customer string, business string) (bool, error) {
	return true, nil
}

type dropPublisher struct{}

func (dropPublisher) Publish(ctx context.Context, event model.Event) error {
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	storage := db.NewMemoryDB()
	ledger := service.NewLedgerService(logger, storage, nil, dropPublisher{}, allowAllGuard{})
	enrollment := service.NewEnrollmentService(logger, storage, dropPublisher{}, allowAllGuard{})
	srv := httptest.NewServer(NewHandler(ledger, enrollment, logger))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method string, path string, actor model.Actor, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-Actor-Id", actor.ID)
	req.Header.Set("X-Actor-Role", actor.Role)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var (
	business = model.Actor{ID: "biz-1", Role: model.RoleBusiness}
	customer = model.Actor{ID: "cust-1", Role: model.RoleCustomer}
	ref      = model.AccountRef{Customer: "cust-1", Business: "biz-1", Program: "prog-1"}
)

func TestAwardAndBalance(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/award", business, AwardRequest{
		AccountRef:  ref,
		Points:      100,
		SourceRef:   "order-1",
		Description: "purchase",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	award := decode[MutationResponse](t, resp)
	require.Equal(t, int64(100), award.NewBalance)
	require.False(t, award.Replayed)

	query := fmt.Sprintf("?customerId=%s&businessId=%s&programId=%s", ref.Customer, ref.Business, ref.Program)
	resp = doJSON(t, srv, http.MethodGet, "/balance"+query, customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[model.Balance](t, resp)
	require.Equal(t, int64(100), balance.Points)
}

func TestAwardReplayReturnsOK(t *testing.T) {
	srv := newTestServer(t)
	req := AwardRequest{AccountRef: ref, Points: 100, SourceRef: "order-1"}

	resp := doJSON(t, srv, http.MethodPost, "/award", business, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[MutationResponse](t, resp)

	resp = doJSON(t, srv, http.MethodPost, "/award", business, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[MutationResponse](t, resp)
	require.True(t, second.Replayed)
	require.Equal(t, first.Tnx, second.Tnx)
	require.Equal(t, first.NewBalance, second.NewBalance)
}

func TestRedeemErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/award", business, AwardRequest{AccountRef: ref, Points: 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// недостаточно баллов
	resp = doJSON(t, srv, http.MethodPost, "/redeem", customer, RedeemRequest{AccountRef: ref, Points: 50, Reason: "coffee"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	require.Equal(t, "insufficient_balance", body["error"])

	// неположительная сумма
	resp = doJSON(t, srv, http.MethodPost, "/redeem", customer, RedeemRequest{AccountRef: ref, Points: 0})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body = decode[map[string]string](t, resp)
	require.Equal(t, "invalid_amount", body["error"])

	// неизвестный счет
	unknown := model.AccountRef{Customer: "nobody", Business: "biz-1", Program: "prog-1"}
	resp = doJSON(t, srv, http.MethodPost, "/redeem", customer, RedeemRequest{AccountRef: unknown, Points: 10})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestInviteRespondFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/invite", business, ref)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	invitation := created["invitationId"]
	require.NotEmpty(t, invitation)

	// второе PENDING для той же пары запрещено
	resp = doJSON(t, srv, http.MethodPost, "/invite", business, ref)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	conflict := decode[map[string]string](t, resp)
	require.Equal(t, "duplicate_pending", conflict["error"])

	resp = doJSON(t, srv, http.MethodPost, "/invitation/"+invitation+"/respond", customer, RespondRequest{Accept: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accepted := decode[map[string]string](t, resp)
	require.NotEmpty(t, accepted["accountId"])

	// повторный ответ
	resp = doJSON(t, srv, http.MethodPost, "/invitation/"+invitation+"/respond", customer, RespondRequest{Accept: false})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resolved := decode[map[string]string](t, resp)
	require.Equal(t, "already_resolved", resolved["error"])
}

func TestRespondBadInvitationID(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/invitation/not-a-uuid/respond", customer, RespondRequest{Accept: true})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, srv, http.MethodPost, "/award", business, AwardRequest{
			AccountRef:  ref,
			Points:      int64(10 * (i + 1)),
			Description: fmt.Sprintf("order %d", i),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	query := fmt.Sprintf("?customerId=%s&businessId=%s&programId=%s&limit=2", ref.Customer, ref.Business, ref.Program)
	resp := doJSON(t, srv, http.MethodGet, "/history"+query, customer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tnxs := decode[[]TnxResponse](t, resp)
	require.Len(t, tnxs, 2)
	// новые первыми
	require.Equal(t, int64(30), tnxs[0].Points)
	require.Equal(t, "EARN", tnxs[0].Direction)
}

func TestDeactivateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodPost, "/award", business, AwardRequest{AccountRef: ref, Points: 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/deactivate", business, ref)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, srv, http.MethodPost, "/redeem", customer, RedeemRequest{AccountRef: ref, Points: 5})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	unavailable := decode[map[string]string](t, resp)
	require.Equal(t, "account_unavailable", unavailable["error"])
}

func TestBadBody(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/award", bytes.NewBufferString("{broken"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"parchi/config"
	"parchi/db/audit"
	"parchi/entity"
	"parchi/gateway"
	"parchi/service"
)

var httpAddress = ":8080"

func TestComponent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).Connect.func1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbconn, err := sqlx.Open("postgres", postgresURL)
	require.NoError(t, err)
	defer dbconn.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: redisURL})
	defer redisClient.Close()

	oracle := &gateway.OracleMock{}

	cfg := config.Config{
		HTTPAddr:      httpAddress,
		PayloadMaxAge: time.Hour,
		ScanTTL:       time.Second,
		OracleTimeout: time.Second,
	}

	finished := make(chan struct{})
	go func() {
		svc := service.New(cfg, dbconn, redisClient, oracle)
		assert.NoError(t, svc.Run(ctx))
		close(finished)
	}()

	defer func() {
		cancel()
		<-finished
	}()

	waitForHttpServer(t)

	eventID := uuid.NewString()
	assetID := "0x" + uuid.NewString()

	oracle.SetAsset(entity.AssetSnapshot{
		AssetID:  assetID,
		Owner:    "holder-1",
		IsFrozen: true,
	})

	issued := issueTicket(t, issueTicketRequest{
		EventID:        eventID,
		TicketNumber:   1,
		HolderIdentity: "holder-1",
		AssetID:        assetID,
	})
	require.NotEmpty(t, issued.QRData)

	// the rendered QR image is served for the ticket
	qrImage := httpGet(t, fmt.Sprintf("http://localhost:8080/tickets/%s/qr.png", issued.TicketID), http.StatusOK)
	require.NotEmpty(t, qrImage)

	// scan opens a verification without touching the ticket
	scan := scanTicket(t, issued.QRData, "staff-1", http.StatusOK)
	require.NotEmpty(t, scan.VerificationID)
	assert.Equal(t, issued.TicketID, scan.TicketID)
	assert.Greater(t, scan.ExpiresInSeconds, 0)

	// the same payload on a second device inside the window is a duplicate
	dup := scanExpectingRejection(t, issued.QRData, "staff-2", http.StatusConflict)
	assert.Equal(t, "DUPLICATE_SCAN_WINDOW", dup.Code)

	// verify redeems
	verify := verifyTicket(t, verifyRequest{VerificationID: scan.VerificationID, Agent: "staff-1", GateID: "gate-a"}, http.StatusOK)
	assert.Equal(t, issued.TicketID, verify.TicketID)
	assert.False(t, verify.AlreadyVerified)

	// replaying the same verification is idempotent
	replay := verifyTicket(t, verifyRequest{VerificationID: scan.VerificationID, Agent: "staff-1", GateID: "gate-a"}, http.StatusOK)
	assert.True(t, replay.AlreadyVerified)
	assert.Equal(t, verify.UsedAt.Unix(), replay.UsedAt.Unix())

	// once the duplicate window lapses, a later scan of the same ticket
	// reports the original redemption
	time.Sleep(cfg.ScanTTL + 100*time.Millisecond)
	rejection := scanExpectingRejection(t, issued.QRData, "staff-2", http.StatusConflict)
	assert.Equal(t, "ALREADY_REDEEMED", rejection.Code)
	assert.Contains(t, rejection.Message, "Already checked in at")

	// the redemption flowed through the outbox into the audit trail
	assertAuditEventStored(t, dbconn, "TicketRedeemed", issued.TicketID)

	// and into the per-event gate report
	assertGateReportCounts(t, eventID, 1)

	// and the asset mirror got refreshed from the oracle
	assert.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			assert.Contains(t, oracle.Fetched(), assetID)
		},
		10*time.Second,
		100*time.Millisecond,
	)

	t.Run("concurrent verifications redeem once", func(t *testing.T) {
		racedAssetID := "0x" + uuid.NewString()
		oracle.SetAsset(entity.AssetSnapshot{AssetID: racedAssetID, IsFrozen: true})

		raced := issueTicket(t, issueTicketRequest{
			EventID:        eventID,
			TicketNumber:   2,
			HolderIdentity: "holder-2",
			AssetID:        racedAssetID,
		})

		const workers = 10

		// every agent goes straight for the direct verify path, all racing
		// for the same ticket
		var wg sync.WaitGroup
		statuses := make(chan int, workers)
		for i := 0; i < workers; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				statuses <- verifyTicketStatus(t, verifyRequest{
					TicketID: raced.TicketID,
					Agent:    fmt.Sprintf("staff-%d", i),
					GateID:   "gate-a",
				})
			}()
		}
		wg.Wait()
		close(statuses)

		counts := lo.CountValues(lo.ChannelToSlice(statuses))
		assert.Equal(t, 1, counts[http.StatusOK])
		assert.Equal(t, workers-1, counts[http.StatusConflict])
	})
}

type issueTicketRequest struct {
	EventID        string `json:"event_id"`
	TicketNumber   int    `json:"ticket_number"`
	HolderIdentity string `json:"holder_identity"`
	AssetID        string `json:"asset_id"`
}

type issueTicketResponse struct {
	TicketID string `json:"ticket_id"`
	QRData   string `json:"qr_data"`
}

type scanResponse struct {
	VerificationID   string `json:"verification_id"`
	TicketID         string `json:"ticket_id"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type verifyRequest struct {
	VerificationID string `json:"verification_id"`
	TicketID       string `json:"ticket_id"`
	Agent          string `json:"agent"`
	GateID         string `json:"gate_id"`
}

type verifyResponse struct {
	VerificationID  string    `json:"verification_id"`
	TicketID        string    `json:"ticket_id"`
	UsedAt          time.Time `json:"used_at"`
	AlreadyVerified bool      `json:"already_verified"`
}

type rejectionResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func issueTicket(t *testing.T, req issueTicketRequest) issueTicketResponse {
	t.Helper()

	var resp issueTicketResponse
	postJSON(t, "http://localhost:8080/tickets", req, http.StatusCreated, &resp)
	return resp
}

func scanTicket(t *testing.T, qrData, agent string, wantStatus int) scanResponse {
	t.Helper()

	var resp scanResponse
	postJSON(t, "http://localhost:8080/gate/scan", map[string]string{
		"qr_data": qrData,
		"agent":   agent,
		"gate_id": "gate-a",
	}, wantStatus, &resp)
	return resp
}

func scanExpectingRejection(t *testing.T, qrData, agent string, wantStatus int) rejectionResponse {
	t.Helper()

	var resp rejectionResponse
	postJSON(t, "http://localhost:8080/gate/scan", map[string]string{
		"qr_data": qrData,
		"agent":   agent,
		"gate_id": "gate-a",
	}, wantStatus, &resp)
	return resp
}

func verifyTicket(t *testing.T, req verifyRequest, wantStatus int) verifyResponse {
	t.Helper()

	var resp verifyResponse
	postJSON(t, "http://localhost:8080/gate/verify", req, wantStatus, &resp)
	return resp
}

func verifyTicketStatus(t *testing.T, req verifyRequest) int {
	t.Helper()

	payload, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post("http://localhost:8080/gate/verify", "application/json", bytes.NewBuffer(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode
}

func postJSON(t *testing.T, url string, req any, wantStatus int, out any) {
	t.Helper()

	payload, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "unexpected status, body: %s", body)

	require.NoError(t, json.Unmarshal(body, out))
}

func httpGet(t *testing.T, url string, wantStatus int) []byte {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func assertAuditEventStored(t *testing.T, db *sqlx.DB, eventName, ticketID string) {
	auditRepo := audit.NewPostgresRepository(db)

	assert.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			events, err := auditRepo.FindAll(context.Background())
			if !assert.NoError(t, err) {
				return
			}

			_, found := lo.Find(events, func(e entity.AuditEvent) bool {
				return e.Name == eventName && bytes.Contains(e.Payload, []byte(ticketID))
			})
			assert.True(t, found, "audit entry for %s %s not found", eventName, ticketID)
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func assertGateReportCounts(t *testing.T, eventID string, wantRedeemed int) {
	assert.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			var report entity.GateReport
			body := httpGetCollect(t, fmt.Sprintf("http://localhost:8080/events/%s/gate-report", eventID))
			if body == nil {
				return
			}
			if !assert.NoError(t, json.Unmarshal(body, &report)) {
				return
			}
			assert.Equal(t, wantRedeemed, report.Redeemed)
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func httpGetCollect(t *assert.CollectT, url string) []byte {
	resp, err := http.Get(url)
	if !assert.NoError(t, err) {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if !assert.NoError(t, err) {
		return nil
	}
	return body
}

func waitForHttpServer(t *testing.T) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			resp, err := http.Get("http://localhost:8080/health")
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			if assert.Less(t, resp.StatusCode, 300, "API not ready, http status: %d", resp.StatusCode) {
				return
			}
		},
		time.Second*10,
		time.Millisecond*50,
	)
}

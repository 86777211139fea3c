package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/chain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

func newTestService(t *testing.T) *application.Service {
	t.Helper()
	repos := memory.NewRepositories()
	return application.NewService(application.Dependencies{
		Stakes:      repos.Stakes,
		Payments:    repos.Payments,
		Balances:    repos.Balances,
		Queries:     repos.Queries,
		Channels:    repos.Channels,
		Escrows:     repos.Escrows,
		Campaigns:   repos.Campaigns,
		Idempotency: repos.Idempotency,
		Outbox:      repos.Outbox,
		Ledger:      chain.NewSimulatedLedger(),
	})
}

func dialBuffered(t *testing.T, svc *application.Service) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	Register(server, NewTrustInternalServer(svc))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp := &structpb.Struct{}
	err = conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp)
	return resp, err
}

func TestVerifyStakingRequirementsOverGRPC(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	if _, err := svc.Stake(context.Background(), application.Actor{SubjectID: "alice"}, application.StakeInput{Amount: domain.Tokens(25_000)}); err != nil {
		t.Fatalf("stake: %v", err)
	}
	conn := dialBuffered(t, svc)

	resp, err := invoke(t, conn, "VerifyStakingRequirements", map[string]any{"owner": "alice", "tier": "premium"})
	if err != nil {
		t.Fatalf("verify requirements: %v", err)
	}
	if !resp.GetFields()["meets"].GetBoolValue() {
		t.Fatalf("expected PREMIUM stake to meet PREMIUM")
	}
	resp, err = invoke(t, conn, "VerifyStakingRequirements", map[string]any{"owner": "alice", "tier": "elite"})
	if err != nil {
		t.Fatalf("verify requirements: %v", err)
	}
	if resp.GetFields()["meets"].GetBoolValue() {
		t.Fatalf("expected PREMIUM stake to miss ELITE")
	}

	stake, err := invoke(t, conn, "GetStake", map[string]any{"owner": "alice"})
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if got := stake.GetFields()["tier"].GetStringValue(); got != "PREMIUM" {
		t.Fatalf("expected tier PREMIUM, got %q", got)
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	t.Parallel()

	conn := dialBuffered(t, newTestService(t))

	_, err := invoke(t, conn, "GetStake", map[string]any{"owner": "nobody"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound for unknown owner, got %v", err)
	}
	_, err = invoke(t, conn, "VerifyStakingRequirements", map[string]any{"owner": "alice", "tier": "gold"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for unknown tier, got %v", err)
	}
	_, err = invoke(t, conn, "GetTrustScore", map[string]any{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without owner, got %v", err)
	}
}

func TestGetTrustScoreWithoutStake(t *testing.T) {
	t.Parallel()

	srv := NewTrustInternalServer(newTestService(t))
	req, _ := structpb.NewStruct(map[string]any{"owner": "newcomer"})
	resp, err := srv.GetTrustScore(context.Background(), req)
	if err != nil {
		t.Fatalf("get trust score: %v", err)
	}
	composite := resp.GetFields()["composite"].GetNumberValue()
	if composite < 0 || composite > 1 {
		t.Fatalf("composite out of range: %v", composite)
	}
	lower := resp.GetFields()["confidence_lower"].GetNumberValue()
	upper := resp.GetFields()["confidence_upper"].GetNumberValue()
	if lower > composite || upper < composite {
		t.Fatalf("confidence [%v,%v] does not contain %v", lower, upper, composite)
	}
}

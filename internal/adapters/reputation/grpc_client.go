package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

const queryReputationMethod = "/viralforge.reputation.v1.ReputationInternalService/QueryReputation"

// GRPCClient reads reputation and sybil risk from the reputation service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

func DialGRPC(addr string) (*GRPCClient, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("reputation grpc address is required")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial reputation service: %w", err)
	}
	return &GRPCClient{conn: conn}, nil
}

func NewGRPCClient(conn *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *GRPCClient) Query(ctx context.Context, owner string) (domain.TrustSignals, error) {
	req, err := structpb.NewStruct(map[string]any{"entity_id": owner})
	if err != nil {
		return domain.TrustSignals{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, queryReputationMethod, req, resp); err != nil {
		return domain.TrustSignals{}, err
	}
	return signalsFromStruct(resp)
}

func signalsFromStruct(resp *structpb.Struct) (domain.TrustSignals, error) {
	fields := resp.GetFields()
	score, ok := fields["score"]
	if !ok {
		return domain.TrustSignals{}, errors.New("reputation response missing score")
	}
	signals := domain.TrustSignals{
		Score:       score.GetNumberValue(),
		SybilRisk:   fields["sybil_risk"].GetNumberValue(),
		Connections: int(fields["connections"].GetNumberValue()),
	}
	if domains := fields["domain_scores"].GetStructValue(); domains != nil {
		signals.DomainScores = make(map[string]float64, len(domains.GetFields()))
		for name, v := range domains.GetFields() {
			signals.DomainScores[name] = v.GetNumberValue()
		}
	}
	return signals, nil
}

// Static serves fixed signals per owner and neutral, non-degraded signals for
// everyone else. It backs local runs without a reputation service.
type Static struct {
	byOwner map[string]domain.TrustSignals
}

func NewStatic(byOwner map[string]domain.TrustSignals) *Static {
	copied := make(map[string]domain.TrustSignals, len(byOwner))
	for k, v := range byOwner {
		copied[k] = v
	}
	return &Static{byOwner: copied}
}

func (s *Static) Query(_ context.Context, owner string) (domain.TrustSignals, error) {
	if signals, ok := s.byOwner[owner]; ok {
		return signals, nil
	}
	return domain.TrustSignals{Score: domain.NeutralSignal, SybilRisk: domain.NeutralSignal}, nil
}

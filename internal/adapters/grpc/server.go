package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
)

const serviceName = "viralforge.trust.v1.TrustInternalService"

// TrustInternalService is the read-only surface other mesh services call to
// gate work on stake and trust.
type TrustInternalService interface {
	GetTrustScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStake(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyStakingRequirements(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type TrustInternalServer struct {
	service *application.Service
}

func NewTrustInternalServer(service *application.Service) *TrustInternalServer {
	return &TrustInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc TrustInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*TrustInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "GetTrustScore", Handler: unaryHandler("GetTrustScore", svc.GetTrustScore)},
			{MethodName: "GetStake", Handler: unaryHandler("GetStake", svc.GetStake)},
			{MethodName: "VerifyStakingRequirements", Handler: unaryHandler("VerifyStakingRequirements", svc.VerifyStakingRequirements)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "mesh/contracts/proto/trust/v1/trust_internal.proto",
	}, svc)
}

func (s *TrustInternalServer) GetTrustScore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := requiredString(req, "owner")
	if err != nil {
		return nil, err
	}
	score, err := s.service.CalculateTrustScore(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return build(map[string]any{
		"owner":            score.Owner,
		"composite":        score.Composite,
		"economic":         score.Components.Economic,
		"reputation":       score.Components.Reputation,
		"payment":          score.Components.Payment,
		"sybil_resistance": score.Components.SybilResistance,
		"confidence_lower": score.Confidence.Lower,
		"confidence_upper": score.Confidence.Upper,
		"degraded":         score.Degraded,
		"risk_level":       domain.RiskLevel(score.Composite),
		"calculated_at":    score.CalculatedAt.Format(time.RFC3339),
	})
}

func (s *TrustInternalServer) GetStake(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := requiredString(req, "owner")
	if err != nil {
		return nil, err
	}
	acc, err := s.service.GetStake(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return build(map[string]any{
		"owner":                 acc.Owner,
		"tier":                  string(acc.Tier),
		"qualified":             acc.Qualified,
		"total_staked":          acc.TotalStaked.String(),
		"slashable_amount":      acc.SlashableAmount.String(),
		"reputation_multiplier": float64(acc.ReputationMultiplier),
		"locked_until":          acc.LockedUntil.Format(time.RFC3339),
	})
}

func (s *TrustInternalServer) VerifyStakingRequirements(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := requiredString(req, "owner")
	if err != nil {
		return nil, err
	}
	rawTier, err := requiredString(req, "tier")
	if err != nil {
		return nil, err
	}
	tier, err := domain.ParseTier(rawTier)
	if err != nil {
		return nil, toStatus(err)
	}
	ok, err := s.service.VerifyStakingRequirements(ctx, owner, tier)
	if err != nil {
		return nil, toStatus(err)
	}
	return build(map[string]any{"owner": owner, "required_tier": string(tier), "meets": ok})
}

func requiredString(req *structpb.Struct, field string) (string, error) {
	v := req.GetFields()[field]
	if v == nil || strings.TrimSpace(v.GetStringValue()) == "" {
		return "", status.Errorf(codes.InvalidArgument, "missing %s", field)
	}
	return strings.TrimSpace(v.GetStringValue()), nil
}

func build(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrExternalService):
		return status.Error(codes.Unavailable, "upstream dependency failed")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func unaryHandler(method string, call func(context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return call(ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}

package health

import (
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCMirror returns an OnUpdate listener that publishes readiness on the
// standard gRPC health service, both for the named service and the
// server-wide "" entry.
func GRPCMirror(srv *grpchealth.Server, service string) func(OverallHealth) {
	return func(o OverallHealth) {
		status := healthpb.HealthCheckResponse_SERVING
		if !o.Ready {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus(service, status)
		srv.SetServingStatus("", status)
	}
}

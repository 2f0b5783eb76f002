package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/bookit-app/bookit/libs/grpcx"
	"github.com/bookit-app/bookit/services/booking-service/internal/grpcserver"
	"google.golang.org/grpc"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, port string, engine grpcserver.SlotEngine) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpcx.ServerOptions(grpcx.UnaryServerLogInterceptor(logger))...)
	health := grpcserver.Register(srv, engine, logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		health.Shutdown()
		srv.GracefulStop()
	}()

	return nil
}

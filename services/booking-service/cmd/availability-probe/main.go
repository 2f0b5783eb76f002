// availability-probe queries the booking-service gRPC API from a terminal,
// or tails the booking events on Kafka.
//
//	availability-probe -mode slots -business-id B -service-id S -from 2024-01-15 -to 2024-01-21
//	availability-probe -mode check -business-id B -service-id S -date 2024-01-15 -time 10:30
//	availability-probe -mode watch -brokers localhost:9092
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bookit-app/bookit/libs/config"
	"github.com/bookit-app/bookit/libs/kafkax"
	"github.com/bookit-app/bookit/services/booking-service/internal/availability"
	"github.com/bookit-app/bookit/services/booking-service/internal/localtime"
	"github.com/bookit-app/bookit/services/booking-service/internal/outbox"
	"github.com/bookit-app/bookit/services/booking-service/internal/scheduling"
	"github.com/fatih/color"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	var (
		mode     = flag.String("mode", "slots", "slots | check | watch")
		addr     = flag.String("addr", config.String("BOOKING_GRPC_ADDR", "localhost:9093"), "booking-service gRPC address")
		business = flag.String("business-id", config.String("BUSINESS_ID", ""), "business id")
		service  = flag.String("service-id", config.String("SERVICE_ID", ""), "service id")
		staff    = flag.String("staff-id", "", "staff id (empty means any staff)")
		from     = flag.String("from", "", "first date, YYYY-MM-DD")
		to       = flag.String("to", "", "last date, YYYY-MM-DD (defaults to from)")
		date     = flag.String("date", "", "date for -mode check")
		at       = flag.String("time", "", "local time HH:mm for -mode check")
		brokers  = flag.String("brokers", config.String("KAFKA_BROKERS", "localhost:9092"), "kafka brokers for -mode watch")
		timeout  = flag.Duration("timeout", 5*time.Second, "rpc timeout")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "slots", "check":
		if strings.TrimSpace(*business) == "" || strings.TrimSpace(*service) == "" {
			fatal("business-id and service-id are required")
		}
		var client *scheduling.Client
		client, err = scheduling.Dial(*addr)
		if err != nil {
			fatal(err.Error())
		}
		defer client.Close()

		rpcCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		if *mode == "slots" {
			err = printSlots(rpcCtx, client, *business, *service, *staff, *from, *to)
		} else {
			err = printCheck(rpcCtx, client, *business, *service, *staff, *date, *at)
		}
	case "watch":
		err = watch(ctx, kafkax.SplitBrokers(*brokers))
	default:
		fatal("unknown mode " + *mode)
	}
	if err != nil {
		fatal(err.Error())
	}
}

func staffPtr(raw string) *string {
	if raw = strings.TrimSpace(raw); raw == "" {
		return nil
	}
	return &raw
}

func printSlots(ctx context.Context, client *scheduling.Client, business, service, staff, fromRaw, toRaw string) error {
	first, err := localtime.ParseDate(fromRaw)
	if err != nil {
		return err
	}
	last := first
	if toRaw != "" {
		if last, err = localtime.ParseDate(toRaw); err != nil {
			return err
		}
	}

	slots, err := client.GetAvailableSlots(ctx, availability.SlotQuery{
		BusinessID: business,
		ServiceID:  service,
		StaffID:    staffPtr(staff),
		From:       first,
		To:         last,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d min)\n", color.CyanString(slots.Timezone), slots.DurationMin)
	for d := first; !d.After(last); d = d.AddDays(1) {
		day := slots.Days[d]
		label := fmt.Sprintf("%s %s", d, d.Weekday().String()[:3])
		if len(day) == 0 {
			fmt.Printf("  %s  %s\n", label, color.HiBlackString("closed or fully booked"))
			continue
		}
		parts := make([]string, 0, len(day))
		for _, c := range day {
			parts = append(parts, c.String())
		}
		fmt.Printf("  %s  %s\n", label, color.GreenString(strings.Join(parts, " ")))
	}
	return nil
}

func printCheck(ctx context.Context, client *scheduling.Client, business, service, staff, dateRaw, timeRaw string) error {
	d, err := localtime.ParseDate(dateRaw)
	if err != nil {
		return err
	}
	c, err := localtime.ParseClock(timeRaw)
	if err != nil {
		return err
	}
	ok, err := client.IsSlotAvailable(ctx, availability.SlotCheck{
		BusinessID: business,
		ServiceID:  service,
		StaffID:    staffPtr(staff),
		Date:       d,
		Start:      c,
	})
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("%s %s %s\n", d, c, color.GreenString("available"))
	} else {
		fmt.Printf("%s %s %s\n", d, c, color.RedString("unavailable"))
	}
	return nil
}

// watch prints every booking event until interrupted.
func watch(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers")
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupTopics: []string{outbox.EventAppointmentBooked, outbox.EventAppointmentCanceled, outbox.EventAppointmentStatusChanged},
		GroupID:     fmt.Sprintf("availability-probe-%d", os.Getpid()),
		StartOffset: kafka.LastOffset,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		meta := kafkax.ExtractEventMeta(msg)
		traceID := trace.SpanContextFromContext(kafkax.ExtractTraceContext(ctx, msg)).TraceID()
		fmt.Printf("%s %s aggregate=%s event=%s trace=%s\n  %s\n",
			msg.Time.Format(time.RFC3339),
			color.YellowString(meta.EventType),
			meta.AggregateID,
			meta.EventID,
			traceID,
			msg.Value,
		)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

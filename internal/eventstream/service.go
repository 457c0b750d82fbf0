// Package eventstream streams condition transitions and cue fires to remote
// observers over gRPC.
package eventstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/pulsewave/internal/cue"
)

const (
	serviceName = "pulsewave.v1.EventStream"
	watchMethod = "/" + serviceName + "/Watch"
)

// Event kinds carried in the "kind" field.
const (
	KindTransition = "transition"
	KindCue        = "cue"
)

// EventStreamServer is the server API for the event stream service.
type EventStreamServer interface {
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pulsewave/v1/events.proto",
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EventStreamServer).Watch(in, stream)
}

// RegisterEventStreamServer registers srv on s.
func RegisterEventStreamServer(s grpc.ServiceRegistrar, srv EventStreamServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Event is the decoded form of a streamed message.
type Event struct {
	Kind      string
	Previous  cue.Condition
	Condition cue.Condition
	Value     float64
	At        time.Time
}

// TransitionStruct encodes a transition for the wire.
func TransitionStruct(ev cue.TransitionEvent) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":      structpb.NewStringValue(KindTransition),
		"previous":  structpb.NewStringValue(string(ev.Previous)),
		"condition": structpb.NewStringValue(string(ev.Current)),
		"at":        structpb.NewStringValue(ev.At.UTC().Format(time.RFC3339Nano)),
	}}
}

// CueStruct encodes a cue fire for the wire.
func CueStruct(ev cue.CueEvent) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":      structpb.NewStringValue(KindCue),
		"condition": structpb.NewStringValue(string(ev.Condition)),
		"value":     structpb.NewNumberValue(ev.Value),
		"at":        structpb.NewStringValue(ev.At.UTC().Format(time.RFC3339Nano)),
	}}
}

// Decode converts a wire message back into an Event.
func Decode(s *structpb.Struct) (Event, error) {
	f := s.GetFields()
	ev := Event{
		Kind:      f["kind"].GetStringValue(),
		Previous:  cue.Condition(f["previous"].GetStringValue()),
		Condition: cue.Condition(f["condition"].GetStringValue()),
		Value:     f["value"].GetNumberValue(),
	}
	if ev.Kind != KindTransition && ev.Kind != KindCue {
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	at, err := time.Parse(time.RFC3339Nano, f["at"].GetStringValue())
	if err != nil {
		return Event{}, fmt.Errorf("event time: %w", err)
	}
	ev.At = at
	return ev, nil
}

// Watch subscribes to the event stream on conn and calls fn for every event
// until the stream ends, ctx is cancelled or fn returns an error.
func Watch(ctx context.Context, conn grpc.ClientConnInterface, fn func(Event) error) error {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], watchMethod)
	if err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close send: %w", err)
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		ev, err := Decode(msg)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

package vehiclesim

import (
	"fmt"
	"time"

	pb "github.com/aman-2709/vehicle-sovd-sub000/api/vehicle/v1"
)

// Handler produces the payloads streamed back for one command, in order.
type Handler func(req *pb.CommandRequest) ([]map[string]any, error)

// Fault parameter: when a request carries "simulate", the simulator misbehaves
// instead of running the handler.
const (
	ParamSimulate = "simulate"

	// FaultTimeout never answers.
	FaultTimeout = "timeout"
	// FaultUnavailable fails with codes.Unavailable.
	FaultUnavailable = "unavailable"
	// FaultMalformed sends a chunk whose payload is not an object.
	FaultMalformed = "malformed"
	// FaultTruncated closes the stream without a final chunk.
	FaultTruncated = "truncated"
)

var sampleDTCs = []map[string]any{
	{"dtc": "P0101", "description": "Mass air flow circuit range/performance", "status": "confirmed"},
	{"dtc": "P0300", "description": "Random/multiple cylinder misfire detected", "status": "pending"},
	{"dtc": "U0100", "description": "Lost communication with ECM/PCM", "status": "confirmed"},
}

// DefaultHandlers returns the built-in diagnostic commands.
func DefaultHandlers() map[string]Handler {
	return map[string]Handler{
		"read_dtc":  readDTC,
		"clear_dtc": clearDTC,
		"read_data": readData,
		"ecu_reset": ecuReset,
	}
}

func readDTC(req *pb.CommandRequest) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(sampleDTCs))
	for _, d := range sampleDTCs {
		chunk := map[string]any{"ecu": ecuOf(req)}
		for k, v := range d {
			chunk[k] = v
		}
		out = append(out, chunk)
	}
	return out, nil
}

func clearDTC(req *pb.CommandRequest) ([]map[string]any, error) {
	return []map[string]any{{"ecu": ecuOf(req), "cleared": len(sampleDTCs)}}, nil
}

func readData(req *pb.CommandRequest) ([]map[string]any, error) {
	did, _ := req.Params["did"].(string)
	if did == "" {
		return nil, fmt.Errorf("read_data requires a did parameter")
	}
	return []map[string]any{{"ecu": ecuOf(req), "did": did, "value": "0x1A2B"}}, nil
}

func ecuReset(req *pb.CommandRequest) ([]map[string]any, error) {
	return []map[string]any{
		{"ecu": ecuOf(req), "phase": "resetting"},
		{"ecu": ecuOf(req), "phase": "ready", "reset_at": time.Now().UTC().Format(time.RFC3339)},
	}, nil
}

func ecuOf(req *pb.CommandRequest) string {
	if ecu, ok := req.Params["ecu"].(string); ok && ecu != "" {
		return ecu
	}
	return "engine"
}

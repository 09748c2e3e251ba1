package coordinator

import (
	"encoding/json"
	"fmt"

	"github.com/prism-io/prism/pkg/crdtkernel"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
)

// CRDTOpKind names one of the kernel's closed set of local mutators. A
// CommandCRDTOperation's payload is an Operation carrying one OpKind and
// only the fields that kind needs.
type CRDTOpKind string

const (
	OpRegister          CRDTOpKind = "register"
	OpGCounterIncrement CRDTOpKind = "g_counter_increment"
	OpPNCounterIncr     CRDTOpKind = "pn_counter_increment"
	OpPNCounterDecr     CRDTOpKind = "pn_counter_decrement"
	OpGSetAdd           CRDTOpKind = "g_set_add"
	OpTwoPhaseSetAdd    CRDTOpKind = "two_phase_set_add"
	OpTwoPhaseSetRemove CRDTOpKind = "two_phase_set_remove"
	OpLWWRegisterSet    CRDTOpKind = "lww_register_set"
	OpMVRegisterSet     CRDTOpKind = "mv_register_set"
	OpORSetAdd          CRDTOpKind = "or_set_add"
	OpORSetRemove       CRDTOpKind = "or_set_remove"
	OpRGAInsertAfter    CRDTOpKind = "rga_insert_after"
	OpRGARemove         CRDTOpKind = "rga_remove"
)

// Operation is the envelope carried in Command.Payload for
// types.CommandCRDTOperation entries. Only the fields relevant to Op are
// populated; the rest are left zero.
type Operation struct {
	Op   CRDTOpKind     `json:"op"`
	Slot string         `json:"slot"`
	Kind types.CRDTKind `json:"kind,omitempty"` // OpRegister only

	Delta uint64 `json:"delta,omitempty"` // counter ops

	Value   string `json:"value,omitempty"`   // set/register ops
	Element string `json:"element,omitempty"` // OR-Set ops
	Tag     string `json:"tag,omitempty"`     // OpORSetAdd

	Timestamp   *types.HybridTimestamp `json:"timestamp,omitempty"`   // OpLWWRegisterSet, OpRGAInsertAfter, OpRGARemove
	Predecessor *types.HybridTimestamp `json:"predecessor,omitempty"` // OpRGAInsertAfter
}

// unmarshalPayload decodes a Command's JSON payload into v, wrapping
// decode failures in the shared error taxonomy.
func unmarshalPayload(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return prismerr.Wrap(prismerr.KindFatal, "decode_payload_failed", "unmarshal command payload", err)
	}
	return nil
}

// EncodeOperation wraps op as a types.Command ready for SubmitCommand.
func EncodeOperation(op Operation) (types.Command, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return types.Command{}, prismerr.Wrap(prismerr.KindFatal, "encode_operation_failed", "marshal CRDT operation", err)
	}
	return types.Command{Kind: types.CommandCRDTOperation, Payload: payload}, nil
}

// applyOperation dispatches a decoded Operation against kernel. It is the
// sole place that knows how the flat Operation envelope maps onto the
// kernel's typed, per-kind mutator methods.
func applyOperation(kernel *crdtkernel.Kernel, op Operation) (any, error) {
	switch op.Op {
	case OpRegister:
		return kernel.Register(op.Slot, op.Kind)
	case OpGCounterIncrement:
		return nil, kernel.GCounterIncrement(op.Slot, op.Delta)
	case OpPNCounterIncr:
		return nil, kernel.PNCounterIncrement(op.Slot, op.Delta)
	case OpPNCounterDecr:
		return nil, kernel.PNCounterDecrement(op.Slot, op.Delta)
	case OpGSetAdd:
		return nil, kernel.GSetAdd(op.Slot, op.Value)
	case OpTwoPhaseSetAdd:
		return nil, kernel.TwoPhaseSetAdd(op.Slot, op.Value)
	case OpTwoPhaseSetRemove:
		return nil, kernel.TwoPhaseSetRemove(op.Slot, op.Value)
	case OpLWWRegisterSet:
		if op.Timestamp == nil {
			return nil, prismerr.New(prismerr.KindPrecondition, "missing_timestamp", "lww_register_set requires a timestamp")
		}
		return nil, kernel.LWWRegisterSet(op.Slot, op.Value, *op.Timestamp)
	case OpMVRegisterSet:
		return nil, kernel.MVRegisterSet(op.Slot, op.Value)
	case OpORSetAdd:
		return nil, kernel.ORSetAdd(op.Slot, op.Element, op.Tag)
	case OpORSetRemove:
		return nil, kernel.ORSetRemove(op.Slot, op.Element)
	case OpRGAInsertAfter:
		if op.Timestamp == nil {
			return nil, prismerr.New(prismerr.KindPrecondition, "missing_timestamp", "rga_insert_after requires an id timestamp")
		}
		return nil, kernel.RGAInsertAfter(op.Slot, op.Predecessor, *op.Timestamp, op.Value)
	case OpRGARemove:
		if op.Timestamp == nil {
			return nil, prismerr.New(prismerr.KindPrecondition, "missing_timestamp", "rga_remove requires an id timestamp")
		}
		return nil, kernel.RGARemove(op.Slot, *op.Timestamp)
	default:
		return nil, prismerr.New(prismerr.KindPrecondition, "invalid_operation", fmt.Sprintf("unknown CRDT operation %q", op.Op))
	}
}

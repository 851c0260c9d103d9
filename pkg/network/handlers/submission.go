package handlers

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/quic-go/quic-go"

	"github.com/eigerco/beacon/internal/crypto/ed25519"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/ledger"
	"github.com/eigerco/beacon/internal/statetransition"
	"github.com/eigerco/beacon/pkg/log"
)

// Submitter applies a transaction and waits for the outcome
type Submitter interface {
	Submit(ctx context.Context, tx statetransition.Tx) (ledger.Receipt, error)
}

// Response answers every submission stream. Error is empty when the
// transaction was applied.
type Response struct {
	Seq    uint64
	Height height.Height
	Error  string
}

// SubmissionHandler serves the submission streams (kinds 128 to 131). Each
// stream carries exactly one encoded transaction of the kind the handler
// was built for.
//
// Protocol flow:
//
//	--> Transaction (kind ++ cbor body)
//	--> FIN
//	<-- Response
//	<-- FIN
type SubmissionHandler struct {
	submitter Submitter
	kind      statetransition.Kind
}

func NewSubmissionHandler(submitter Submitter, kind statetransition.Kind) *SubmissionHandler {
	return &SubmissionHandler{submitter: submitter, kind: kind}
}

func (h *SubmissionHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return fmt.Errorf("read request message: %w", err)
	}

	var resp Response
	tx, err := statetransition.DecodeTx(msg.Content)
	switch {
	case err != nil:
		resp.Error = err.Error()
	case tx.Kind() != h.kind:
		resp.Error = fmt.Sprintf("unexpected transaction %s on %s stream", tx.Kind(), h.kind)
	default:
		receipt, err := h.submitter.Submit(ctx, tx)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Seq = receipt.Seq
			resp.Height = receipt.Height
		}
	}
	if resp.Error != "" {
		log.Network.Debug().
			Str("peer", fmt.Sprintf("%x", peerKey)).
			Stringer("kind", h.kind).
			Str("error", resp.Error).
			Msg("submission rejected")
	}

	respBytes, err := cbor.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, respBytes); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// SubmissionSender is the client side of the submission streams
type SubmissionSender struct{}

func NewSubmissionSender() *SubmissionSender {
	return &SubmissionSender{}
}

// Send writes tx on a stream opened with the matching kind and returns the
// peer's response. A transaction the peer rejected is not an error here;
// its reason is in Response.Error.
func (s *SubmissionSender) Send(ctx context.Context, stream quic.Stream, tx statetransition.Tx) (Response, error) {
	reqBytes, err := statetransition.EncodeTx(tx)
	if err != nil {
		return Response{}, fmt.Errorf("encode transaction: %w", err)
	}
	if err := WriteMessageWithContext(ctx, stream, reqBytes); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	if err := stream.Close(); err != nil {
		return Response{}, fmt.Errorf("close stream: %w", err)
	}

	respMsg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := cbor.Unmarshal(respMsg.Content, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

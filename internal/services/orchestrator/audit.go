package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/events"
	"github.com/vadiminshakov/tradeledger/internal/storage/intents"
)

// Chain states of an intent's transaction.
const (
	ChainNone    = "none"
	ChainPending = "pending"
	ChainSuccess = "success"
	ChainFailed  = "failed"
	ChainUnknown = "unknown"
)

// FindingKind classifies an intent flagged by AuditIntents.
type FindingKind string

const (
	// FindingDiverged the chain holds a trade the journal does not.
	FindingDiverged FindingKind = "diverged"
	// FindingUnresolved the outcome cannot be determined yet.
	FindingUnresolved FindingKind = "unresolved"
	// FindingChainFailed the submitted transaction failed; both ledgers agree.
	FindingChainFailed FindingKind = "chain_failed"
)

type Finding struct {
	Intent intents.Intent
	Kind   FindingKind
	Detail string
}

// OrderStatus is an intent with the current state of its transaction.
type OrderStatus struct {
	Intent intents.Intent
	Chain  string
}

// OrderStatus reports what happened to an order, checking the chain for
// intents whose outcome was unknown when the order returned.
func (o *Orchestrator) OrderStatus(ctx context.Context, intentID string) (OrderStatus, error) {
	in, err := o.intents.Get(intentID)
	if err != nil {
		return OrderStatus{}, err
	}
	st := OrderStatus{Intent: in, Chain: ChainNone}
	if in.TxHash == "" {
		return st, nil
	}

	st.Chain = o.chainState(ctx, in.TxHash)
	return st, nil
}

// AuditIntents reports intents whose ledgers may disagree. Intents found
// executed on chain but never journaled are marked diverged; nothing is repaired.
func (o *Orchestrator) AuditIntents(ctx context.Context) ([]Finding, error) {
	open := o.intents.ByStatus(intents.StatusPending, intents.StatusSubmitted, intents.StatusConfirmed, intents.StatusDiverged)
	findings := make([]Finding, 0, len(open))

	for _, in := range open {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		l := o.l.With(zap.String("intent_id", in.ID), zap.String("status", string(in.Status)))

		switch in.Status {
		case intents.StatusDiverged:
			findings = append(findings, Finding{Intent: in, Kind: FindingDiverged, Detail: in.Error})

		case intents.StatusConfirmed:
			findings = append(findings, o.markDiverged(ctx, l, in, "confirmed on chain, journal write never completed"))

		case intents.StatusPending:
			findings = append(findings, Finding{Intent: in, Kind: FindingUnresolved, Detail: "no transaction hash recorded"})

		case intents.StatusSubmitted:
			switch o.chainState(ctx, in.TxHash) {
			case ChainSuccess:
				findings = append(findings, o.markDiverged(ctx, l, in, "transaction succeeded, journal write never completed"))
			case ChainFailed:
				updated, err := o.intents.Advance(in.ID, intents.StatusFailed)
				if err != nil {
					l.Error("failed to record intent transition", zap.Error(err))
					updated = in
				}
				findings = append(findings, Finding{Intent: updated, Kind: FindingChainFailed, Detail: "transaction reverted"})
			default:
				findings = append(findings, Finding{Intent: in, Kind: FindingUnresolved, Detail: "receipt not available"})
			}
		}
	}

	if len(findings) > 0 {
		o.l.Warn("intent audit found open orders", zap.Int("count", len(findings)))
	}
	return findings, nil
}

func (o *Orchestrator) markDiverged(ctx context.Context, l *zap.Logger, in intents.Intent, detail string) Finding {
	updated, err := o.intents.Advance(in.ID, intents.StatusDiverged)
	if err != nil {
		l.Error("failed to record intent transition", zap.Error(err))
		updated = in
	}
	l.Error("CONSISTENCY ALERT: unjournaled chain trade", zap.String("tx_hash", in.TxHash), zap.String("detail", detail))
	o.metrics.alert()
	o.publish(ctx, events.KindIntentDiverged, in.UserID, in.ID, updated)
	return Finding{Intent: updated, Kind: FindingDiverged, Detail: detail}
}

func (o *Orchestrator) chainState(ctx context.Context, txHash string) string {
	if txHash == "" {
		return ChainNone
	}
	receipt, err := o.chain.Receipt(ctx, common.HexToHash(txHash))
	switch {
	case err != nil:
		o.l.Debug("receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		return ChainUnknown
	case receipt == nil:
		return ChainPending
	case receipt.Status == types.ReceiptStatusSuccessful:
		return ChainSuccess
	default:
		return ChainFailed
	}
}

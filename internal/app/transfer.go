/**
 * @description
 * This file implements peer-to-peer transfers between user wallets. A
 * transfer is two ledger legs committed as one atomic unit: the sender's
 * TRANSFER_OUT debit and the receiver's TRANSFER_IN credit. Both legs are
 * validated up front, both wallet locks are taken in deterministic order,
 * and the repository applies both legs plus the transfer record
 * all-or-nothing, so the total money across the pair is conserved.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

// TransferInput describes one requested wallet-to-wallet transfer. The
// receiver may be addressed by user ID or by identifier (username, email
// or mobile); exactly one must be set.
type TransferInput struct {
	SenderID           uuid.UUID
	ReceiverID         uuid.UUID
	ReceiverIdentifier string
	Amount             int64 // in paise
	Note               string
}

// TransferResult reports a committed transfer and its two ledger legs.
type TransferResult struct {
	Transfer    domain.Transfer
	DebitEntry  domain.LedgerEntry
	CreditEntry domain.LedgerEntry
}

// Transfer moves money from the sender's wallet to the receiver's wallet.
// Validation happens before any lock is taken; once both wallet locks are
// held the two legs commit atomically through the repository. After the
// commit a notification event is published to the receiver, fire-and-forget.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.Amount <= 0 {
		return nil, domain.Validationf("amount", "must be positive, got %d", in.Amount)
	}

	receiver, err := s.resolveReceiver(ctx, in)
	if err != nil {
		return nil, err
	}
	if receiver.ID == in.SenderID {
		return nil, ErrSelfTransfer
	}
	if !receiver.Active {
		return nil, ErrRecipientInactive
	}

	if err := s.checkTransferRate(ctx, in.SenderID); err != nil {
		return nil, err
	}

	senderWallet, err := s.repo.FindWalletByUserID(ctx, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender wallet: %w", err)
	}
	receiverWallet, err := s.repo.FindWalletByUserID(ctx, receiver.ID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to resolve receiver wallet: %w", err)
	}

	transfer := domain.Transfer{
		ID:                uuid.New(),
		SenderID:          in.SenderID,
		ReceiverID:        receiver.ID,
		SenderAccountID:   senderWallet.ID,
		ReceiverAccountID: receiverWallet.ID,
		Amount:            in.Amount,
		Note:              in.Note,
		CreatedAt:         s.now(),
	}

	unlock := s.accountLocks.lockPair(senderWallet.ID, receiverWallet.ID)
	debit, credit, err := s.repo.ApplyTransfer(ctx, &transfer)
	unlock()
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "USER", &in.SenderID, fmt.Sprintf("transferred %d paise to user %s", in.Amount, receiver.ID), "transfer", &transfer.ID)

	s.publishTransferReceived(transfer)

	return &TransferResult{Transfer: transfer, DebitEntry: *debit, CreditEntry: *credit}, nil
}

func (s *Service) resolveReceiver(ctx context.Context, in TransferInput) (*domain.User, error) {
	if in.ReceiverID != uuid.Nil {
		receiver, err := s.repo.GetUser(ctx, in.ReceiverID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, ErrRecipientNotFound
			}
			return nil, err
		}
		return receiver, nil
	}
	if in.ReceiverIdentifier == "" {
		return nil, domain.Validationf("receiver", "must set receiver_id or receiver_identifier")
	}
	receiver, err := s.repo.FindUserByIdentifier(ctx, in.ReceiverIdentifier)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return receiver, nil
}

// checkTransferRate consults the configured limiter. Limiter errors fail
// open: an unavailable limiter must not block money movement.
func (s *Service) checkTransferRate(ctx context.Context, senderID uuid.UUID) error {
	if s.transferLimiter == nil || s.transferLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.transferLimiter.ConsumeRateLimit(ctx, "transfer", senderID.String(), s.transferLimit, s.transferWindow)
	if err != nil {
		s.logger.Warn("transfer rate limiter unavailable, allowing", "sender_id", senderID, "error", err)
		return nil
	}
	if count > s.transferLimit {
		s.logger.Info("transfer rate limit reached", "sender_id", senderID, "count", count, "retry_after_seconds", retryAfter)
		return ErrTransferRateLimited
	}
	return nil
}

// publishTransferReceived emits the receiver notification. Publish
// failures are logged and never propagated; notifications are advisory.
func (s *Service) publishTransferReceived(transfer domain.Transfer) {
	event := domain.TransferReceivedEvent{
		TransferID: transfer.ID,
		SenderID:   transfer.SenderID,
		ReceiverID: transfer.ReceiverID,
		Amount:     transfer.Amount,
		Note:       transfer.Note,
		OccurredAt: transfer.CreatedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, "notifications_exchange", domain.RouteTransferReceived, event); err != nil {
		s.logger.Error("failed to publish transfer notification", "transfer_id", transfer.ID, "error", err)
	}
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/swapkit/pkg/helpers"
)

// Details errors
var (
	ErrNotFound        = errors.New("htlc details not found")
	ErrDetailsConflict = errors.New("htlc details already stored with different parameters")
	ErrSpendConflict   = errors.New("htlc already spent by a different transaction")
	ErrMissingHash     = errors.New("payment hash required")
)

// SpendPath names the branch a terminal transaction took.
type SpendPath string

const (
	SpendClaim       SpendPath = "claim"
	SpendRefund      SpendPath = "refund"
	SpendAdminRefund SpendPath = "admin_refund"
)

// Details are the fund-time parameters of one HTLC. They are immutable
// once stored.
type Details struct {
	PaymentHash string
	Network     string
	Subnet      string
	Model       string

	RefundHash string
	Address    string
	Script     string
	Scheme     string
	OrderID    string

	TimelockKind  string
	TimelockValue uint64
	TimelockUnit  string

	CreatedAt time.Time
}

// sameParams reports whether d and o describe the same HTLC.
func (d *Details) sameParams(o *Details) bool {
	return d.PaymentHash == o.PaymentHash &&
		d.Network == o.Network &&
		d.Subnet == o.Subnet &&
		d.Model == o.Model &&
		d.RefundHash == o.RefundHash &&
		d.Address == o.Address &&
		d.Script == o.Script &&
		d.Scheme == o.Scheme &&
		d.OrderID == o.OrderID &&
		d.TimelockKind == o.TimelockKind &&
		d.TimelockValue == o.TimelockValue &&
		d.TimelockUnit == o.TimelockUnit
}

// Spend records the terminal transaction of an HTLC.
type Spend struct {
	PaymentHash string
	Path        SpendPath
	TxID        string
	Secret      string // preimage revealed by the spend, if any
	SpentAt     time.Time
}

func normalizeHash(h string) string {
	return strings.ToLower(helpers.TrimHex(h))
}

// SaveDetails stores d keyed by its payment hash. Saving identical
// parameters again is a no-op; different parameters for a stored payment
// hash return ErrDetailsConflict.
func (s *Storage) SaveDetails(d *Details) error {
	if d.PaymentHash == "" {
		return ErrMissingHash
	}
	rec := *d
	rec.PaymentHash = normalizeHash(d.PaymentHash)
	rec.RefundHash = normalizeHash(d.RefundHash)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getDetails(rec.PaymentHash)
	switch {
	case err == nil:
		if existing.sameParams(&rec) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDetailsConflict, rec.PaymentHash)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO htlc_details (
			payment_hash, network, subnet, model,
			refund_hash, address, script, scheme, order_id,
			timelock_kind, timelock_value, timelock_unit,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.PaymentHash, rec.Network, rec.Subnet, rec.Model,
		nullString(rec.RefundHash), rec.Address, nullString(rec.Script), nullString(rec.Scheme), nullString(rec.OrderID),
		nullString(rec.TimelockKind), int64(rec.TimelockValue), nullString(rec.TimelockUnit),
		timeToUnixOrZero(rec.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDetailsConflict, rec.PaymentHash)
		}
		return fmt.Errorf("failed to save htlc details: %w", err)
	}
	return nil
}

// GetDetails retrieves the details stored for paymentHash.
func (s *Storage) GetDetails(paymentHash string) (*Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDetails(normalizeHash(paymentHash))
}

const detailsColumns = `
	payment_hash, network, subnet, model,
	refund_hash, address, script, scheme, order_id,
	timelock_kind, timelock_value, timelock_unit,
	created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDetails(row rowScanner) (*Details, error) {
	var d Details
	var refundHash, script, scheme, orderID, tlKind, tlUnit sql.NullString
	var tlValue sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&d.PaymentHash, &d.Network, &d.Subnet, &d.Model,
		&refundHash, &d.Address, &script, &scheme, &orderID,
		&tlKind, &tlValue, &tlUnit,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	d.RefundHash = refundHash.String
	d.Script = script.String
	d.Scheme = scheme.String
	d.OrderID = orderID.String
	d.TimelockKind = tlKind.String
	d.TimelockValue = uint64(tlValue.Int64)
	d.TimelockUnit = tlUnit.String
	d.CreatedAt = time.Unix(createdAt, 0)
	return &d, nil
}

func (s *Storage) getDetails(paymentHash string) (*Details, error) {
	row := s.db.QueryRow(`SELECT `+detailsColumns+` FROM htlc_details WHERE payment_hash = ?`, paymentHash)
	d, err := scanDetails(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get htlc details: %w", err)
	}
	return d, nil
}

// ListDetails returns the stored details for a chain, newest first.
// Empty network and subnet list everything.
func (s *Storage) ListDetails(network, subnet string) ([]*Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + detailsColumns + ` FROM htlc_details`
	var args []interface{}
	switch {
	case network != "" && subnet != "":
		query += ` WHERE network = ? AND subnet = ?`
		args = append(args, network, subnet)
	case network != "":
		query += ` WHERE network = ?`
		args = append(args, network)
	}
	query += ` ORDER BY created_at DESC, payment_hash`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list htlc details: %w", err)
	}
	defer rows.Close()

	var result []*Details
	for rows.Next() {
		d, err := scanDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan htlc details: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// RecordSpend stores the terminal spend of a known HTLC. Recording the same
// transaction again is a no-op.
func (s *Storage) RecordSpend(sp *Spend) error {
	rec := *sp
	rec.PaymentHash = normalizeHash(sp.PaymentHash)
	if rec.SpentAt.IsZero() {
		rec.SpentAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getDetails(rec.PaymentHash); err != nil {
		return err
	}

	existing, err := s.getSpend(rec.PaymentHash)
	switch {
	case err == nil:
		if existing.TxID == rec.TxID && existing.Path == rec.Path {
			return nil
		}
		return fmt.Errorf("%w: %s spent by %s", ErrSpendConflict, rec.PaymentHash, existing.TxID)
	case !errors.Is(err, ErrNotFound):
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO htlc_spends (payment_hash, path, txid, secret, spent_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.PaymentHash, string(rec.Path), rec.TxID, nullString(rec.Secret), rec.SpentAt.Unix())
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrSpendConflict, rec.PaymentHash)
		}
		return fmt.Errorf("failed to record spend: %w", err)
	}
	return nil
}

// GetSpend returns the recorded spend for paymentHash.
func (s *Storage) GetSpend(paymentHash string) (*Spend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSpend(normalizeHash(paymentHash))
}

func (s *Storage) getSpend(paymentHash string) (*Spend, error) {
	var sp Spend
	var path string
	var secret sql.NullString
	var spentAt int64

	err := s.db.QueryRow(`
		SELECT payment_hash, path, txid, secret, spent_at
		FROM htlc_spends WHERE payment_hash = ?
	`, paymentHash).Scan(&sp.PaymentHash, &path, &sp.TxID, &secret, &spentAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spend: %w", err)
	}

	sp.Path = SpendPath(path)
	sp.Secret = secret.String
	sp.SpentAt = time.Unix(spentAt, 0)
	return &sp, nil
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

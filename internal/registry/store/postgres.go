package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/sentinel"
	txcontext "certreg/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// Postgres stores registry state in PostgreSQL. The singleton registry_state
// row holds the admin and counter; RunInTx locks it FOR UPDATE so writers are
// serialized across processes.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Bootstrap(ctx context.Context, admin id.Principal) error {
	if err := admin.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO registry_state (id, admin, next_id, updated_at)
		VALUES (1, $1, 0, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, admin.String(), time.Now()); err != nil {
		return fmt.Errorf("bootstrap registry state: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	return getCertificate(ctx, txcontext.ExecutorFor(ctx, s.db), certID)
}

func (s *Postgres) NextID(ctx context.Context) (id.CertificateID, error) {
	_, next, err := readState(ctx, txcontext.ExecutorFor(ctx, s.db), false)
	return next, err
}

func (s *Postgres) Admin(ctx context.Context) (id.Principal, error) {
	admin, _, err := readState(ctx, txcontext.ExecutorFor(ctx, s.db), false)
	return admin, err
}

func (s *Postgres) Count(ctx context.Context) (uint64, error) {
	return countCertificates(ctx, txcontext.ExecutorFor(ctx, s.db))
}

// RunInTx reports a failure caused by ctx ending, including a deadline hit
// while waiting for the state row lock, as CodeTimeout.
func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	defer func() {
		err = timeoutIfDone(ctx, err)
	}()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registry tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	admin, next, err := readState(ctx, sqlTx, true)
	if err != nil {
		return err
	}

	t := &pgTx{exec: sqlTx, admin: admin, nextID: next}
	if err = fn(txcontext.WithTx(ctx, sqlTx), t); err != nil {
		return err
	}
	if t.stateDirty {
		query := `UPDATE registry_state SET admin = $1, next_id = $2, updated_at = $3 WHERE id = 1`
		if _, err = sqlTx.ExecContext(ctx, query, t.admin.String(), int64(t.nextID), time.Now()); err != nil {
			return fmt.Errorf("update registry state: %w", err)
		}
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit registry tx: %w", err)
	}
	return nil
}

// timeoutIfDone keeps guard and validation failures but reclassifies
// infrastructure errors as CodeTimeout once ctx is done.
func timeoutIfDone(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	ctxErr := ctx.Err()
	if ctxErr == nil || dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeTimeout, "registry transaction aborted: "+ctxErr.Error())
}

// pgTx buffers the locked registry_state row and writes it back once on
// commit; certificate rows are written immediately.
type pgTx struct {
	exec       txcontext.Executor
	admin      id.Principal
	nextID     id.CertificateID
	stateDirty bool
}

func (t *pgTx) Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	return getCertificate(ctx, t.exec, certID)
}

func (t *pgTx) NextID(context.Context) (id.CertificateID, error) {
	return t.nextID, nil
}

func (t *pgTx) Admin(context.Context) (id.Principal, error) {
	return t.admin, nil
}

func (t *pgTx) Count(ctx context.Context) (uint64, error) {
	return countCertificates(ctx, t.exec)
}

func (t *pgTx) Insert(ctx context.Context, cert *models.Certificate) error {
	if uint64(cert.ID) > math.MaxInt64 {
		return dErrors.New(dErrors.CodeInvariantViolation, "certificate id exceeds storage range")
	}
	query := `
		INSERT INTO certificates (id, course, grade, owner, issued_by, minted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.exec.ExecContext(ctx, query,
		int64(cert.ID),
		cert.Course,
		cert.Grade,
		cert.Owner.String(),
		cert.IssuedBy.String(),
		cert.MintedAt,
		cert.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (t *pgTx) SetOwner(ctx context.Context, certID id.CertificateID, owner id.Principal, now time.Time) error {
	if uint64(certID) > math.MaxInt64 {
		return sentinel.ErrNotFound
	}
	res, err := t.exec.ExecContext(ctx,
		`UPDATE certificates SET owner = $1, updated_at = $2 WHERE id = $3`,
		owner.String(), now, int64(certID))
	if err != nil {
		return fmt.Errorf("update certificate owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update certificate owner: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetNextID(_ context.Context, next id.CertificateID) error {
	if uint64(next) > math.MaxInt64 {
		return dErrors.New(dErrors.CodeInvariantViolation, "certificate counter exceeds storage range")
	}
	t.nextID = next
	t.stateDirty = true
	return nil
}

func (t *pgTx) SetAdmin(_ context.Context, admin id.Principal) error {
	t.admin = admin
	t.stateDirty = true
	return nil
}

func readState(ctx context.Context, exec txcontext.Executor, forUpdate bool) (id.Principal, id.CertificateID, error) {
	query := `SELECT admin, next_id FROM registry_state WHERE id = 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		admin string
		next  int64
	)
	if err := exec.QueryRowContext(ctx, query).Scan(&admin, &next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, sentinel.ErrUninitialized
		}
		return "", 0, fmt.Errorf("read registry state: %w", err)
	}
	return id.Principal(admin), id.CertificateID(next), nil
}

func getCertificate(ctx context.Context, exec txcontext.Executor, certID id.CertificateID) (*models.Certificate, error) {
	if uint64(certID) > math.MaxInt64 {
		return nil, sentinel.ErrNotFound
	}
	query := `
		SELECT id, course, grade, owner, issued_by, minted_at, updated_at
		FROM certificates
		WHERE id = $1
	`
	var (
		rawID           int64
		owner, issuedBy string
		cert            models.Certificate
	)
	err := exec.QueryRowContext(ctx, query, int64(certID)).Scan(
		&rawID, &cert.Course, &cert.Grade, &owner, &issuedBy, &cert.MintedAt, &cert.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	cert.ID = id.CertificateID(rawID)
	cert.Owner = id.Principal(owner)
	cert.IssuedBy = id.Principal(issuedBy)
	return &cert, nil
}

func countCertificates(ctx context.Context, exec txcontext.Executor) (uint64, error) {
	var n int64
	if err := exec.QueryRowContext(ctx, `SELECT count(*) FROM certificates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return uint64(n), nil
}

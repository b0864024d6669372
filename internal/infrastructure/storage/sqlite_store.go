package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"DigestScheduler/internal/domain"
	"DigestScheduler/internal/ports"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a user or artifact does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore persists users, scheduling state and pipeline artifacts.
type SQLiteStore struct {
	db    *sql.DB
	newID func() string
}

var (
	_ ports.DueRecordStore = (*SQLiteStore)(nil)
	_ ports.ProfileStore   = (*SQLiteStore)(nil)
	_ ports.ContentStore   = (*SQLiteStore)(nil)
	_ ports.ArtifactStore  = (*SQLiteStore)(nil)
)

// Open opens (creating if needed) the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection serializes writers; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		_, _ = db.ExecContext(ctx, pragma)
	}

	s := &SQLiteStore{db: db, newID: uuid.NewString}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveUser upserts a user's profile and schedule. The last update timestamp
// and latest content are left as they are for existing users.
func (s *SQLiteStore) SaveUser(ctx context.Context, profile domain.UserProfile, interval time.Duration, flags domain.Eligibility) error {
	if strings.TrimSpace(profile.UserID) == "" {
		return errors.New("user id is required")
	}
	topics, err := json.Marshal(profile.Topics)
	if err != nil {
		return errors.Wrap(err, "marshal topics")
	}

	query, args, err := sq.Insert("users").
		Columns("id", "language", "country", "presenter_name", "voice_id", "push_token", "topics", "interval_seconds", "flags").
		Values(profile.UserID, profile.Language, profile.Country, profile.PresenterName, profile.VoiceID,
			profile.PushToken, string(topics), int64(interval/time.Second), int(flags)).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			language = excluded.language,
			country = excluded.country,
			presenter_name = excluded.presenter_name,
			voice_id = excluded.voice_id,
			push_token = excluded.push_token,
			topics = excluded.topics,
			interval_seconds = excluded.interval_seconds,
			flags = excluded.flags`).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build upsert")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "upsert user %s", profile.UserID)
	}
	return nil
}

// CandidateUsers lists every known user ID.
func (s *SQLiteStore) CandidateUsers(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("id").From("users").OrderBy("id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows iteration")
	}
	return ids, nil
}

// DueRecord reads the scheduling snapshot of one user.
func (s *SQLiteStore) DueRecord(ctx context.Context, userID string) (domain.DueRecord, error) {
	query, args, err := sq.Select("interval_seconds", "last_update", "flags").
		From("users").Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return domain.DueRecord{}, errors.Wrap(err, "build query")
	}

	var (
		intervalSeconds int64
		lastUpdate      sql.NullInt64
		flags           int
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&intervalSeconds, &lastUpdate, &flags)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DueRecord{}, errors.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return domain.DueRecord{}, errors.Wrapf(err, "read due record %s", userID)
	}

	rec := domain.DueRecord{
		UserID:   userID,
		Interval: time.Duration(intervalSeconds) * time.Second,
		Flags:    domain.Eligibility(flags),
	}
	if lastUpdate.Valid {
		rec.LastUpdate = time.Unix(0, lastUpdate.Int64).UTC()
	}
	return rec, nil
}

// Profile reads the digest preferences of one user.
func (s *SQLiteStore) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	query, args, err := sq.Select("language", "country", "presenter_name", "voice_id", "push_token", "topics").
		From("users").Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return domain.UserProfile{}, errors.Wrap(err, "build query")
	}

	p := domain.UserProfile{UserID: userID}
	var topics string
	err = s.db.QueryRowContext(ctx, query, args...).
		Scan(&p.Language, &p.Country, &p.PresenterName, &p.VoiceID, &p.PushToken, &topics)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserProfile{}, errors.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return domain.UserProfile{}, errors.Wrapf(err, "read profile %s", userID)
	}
	if err := json.Unmarshal([]byte(topics), &p.Topics); err != nil {
		return domain.UserProfile{}, errors.Wrapf(err, "decode topics of %s", userID)
	}
	return p, nil
}

// SaveContent stores a refreshed content set and returns its reference.
func (s *SQLiteStore) SaveContent(ctx context.Context, set domain.ContentSet) (string, error) {
	payload, err := json.Marshal(set)
	if err != nil {
		return "", errors.Wrap(err, "marshal content")
	}
	ref := s.newID()
	if err := s.insert(ctx, "contents", []string{"id", "user_id", "fetched_at", "payload"},
		ref, set.UserID, set.FetchedAt.UnixNano(), string(payload)); err != nil {
		return "", err
	}
	return ref, nil
}

// Content loads a stored content set.
func (s *SQLiteStore) Content(ctx context.Context, ref string) (domain.ContentSet, error) {
	var set domain.ContentSet
	if err := s.loadPayload(ctx, "contents", ref, &set); err != nil {
		return domain.ContentSet{}, err
	}
	return set, nil
}

// LatestContent returns the content recorded by the user's last successful refresh.
func (s *SQLiteStore) LatestContent(ctx context.Context, userID string) (domain.Artifact, bool, error) {
	query, args, err := sq.Select("latest_content_ref").From("users").Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return domain.Artifact{}, false, errors.Wrap(err, "build query")
	}

	var ref sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Artifact{}, false, nil
	}
	if err != nil {
		return domain.Artifact{}, false, errors.Wrapf(err, "read latest content %s", userID)
	}
	if !ref.Valid || ref.String == "" {
		return domain.Artifact{}, false, nil
	}
	return domain.Artifact{Kind: domain.ArtifactContent, Ref: ref.String}, true, nil
}

// MarkRefreshed advances the user's last update timestamp.
func (s *SQLiteStore) MarkRefreshed(ctx context.Context, userID string, at time.Time, contentRef string) error {
	query, args, err := sq.Update("users").
		Set("last_update", at.UnixNano()).
		Set("latest_content_ref", contentRef).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build update")
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "mark refreshed %s", userID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "user %s", userID)
	}
	return nil
}

// SaveReport stores a generated report and returns its reference.
func (s *SQLiteStore) SaveReport(ctx context.Context, report domain.Report) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", errors.Wrap(err, "marshal report")
	}
	ref := s.newID()
	if err := s.insert(ctx, "reports", []string{"id", "user_id", "content_ref", "generated_at", "payload"},
		ref, report.UserID, report.ContentRef, report.GeneratedAt.UnixNano(), string(payload)); err != nil {
		return "", err
	}
	return ref, nil
}

// Report loads a stored report.
func (s *SQLiteStore) Report(ctx context.Context, ref string) (domain.Report, error) {
	var report domain.Report
	if err := s.loadPayload(ctx, "reports", ref, &report); err != nil {
		return domain.Report{}, err
	}
	return report, nil
}

// SavePodcast records a synthesized podcast.
func (s *SQLiteStore) SavePodcast(ctx context.Context, p domain.Podcast) (string, error) {
	ref := s.newID()
	if err := s.insert(ctx, "podcasts", []string{"id", "user_id", "report_ref", "audio_ref", "bytes", "created_at"},
		ref, p.UserID, p.ReportRef, p.AudioRef, p.Bytes, p.CreatedAt.UnixNano()); err != nil {
		return "", err
	}
	return ref, nil
}

// Podcasts lists podcasts recorded for a user, newest first.
func (s *SQLiteStore) Podcasts(ctx context.Context, userID string) ([]domain.Podcast, error) {
	query, args, err := sq.Select("user_id", "report_ref", "audio_ref", "bytes", "created_at").
		From("podcasts").Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query podcasts")
	}
	defer rows.Close()

	var out []domain.Podcast
	for rows.Next() {
		var (
			p       domain.Podcast
			created int64
		)
		if err := rows.Scan(&p.UserID, &p.ReportRef, &p.AudioRef, &p.Bytes, &created); err != nil {
			return nil, errors.Wrap(err, "scan podcast")
		}
		p.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "rows iteration")
}

func (s *SQLiteStore) insert(ctx context.Context, table string, columns []string, values ...any) error {
	query, args, err := sq.Insert(table).Columns(columns...).Values(values...).ToSql()
	if err != nil {
		return errors.Wrapf(err, "build insert into %s", table)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "insert into %s", table)
	}
	return nil
}

func (s *SQLiteStore) loadPayload(ctx context.Context, table, ref string, v any) error {
	query, args, err := sq.Select("payload").From(table).Where(sq.Eq{"id": ref}).ToSql()
	if err != nil {
		return errors.Wrap(err, "build query")
	}

	var payload string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "%s %s", table, ref)
	}
	if err != nil {
		return errors.Wrapf(err, "read %s %s", table, ref)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return errors.Wrapf(err, "decode %s %s", table, ref)
	}
	return nil
}

// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/experimaestro/experimaestro-go/internal/xerrors"
)

// index is the write-behind SQLite mirror of the in-memory jobs map,
// described in SPEC_FULL.md section 3's persistence supplement: a
// single table a restarted workspace can enumerate before it has to
// probe the filesystem for pid files.
type index struct {
	db *sql.DB
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS jobs (
	locator         TEXT PRIMARY KEY,
	task_id         TEXT NOT NULL,
	state           TEXT NOT NULL,
	submission_time INTEGER NOT NULL
)`

// openIndex opens (creating if needed) the SQLite database at path. An
// empty path opens a private in-memory database, for tests and for
// workspaces that don't need restart support.
func openIndex(path string) (*index, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.IO(err, "opening job index %q", path)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, xerrors.IO(err, "creating jobs table in %q", path)
	}
	return &index{db: db}, nil
}

// record upserts a job's row: called once at submit time (step 3 of
// the submit algorithm) with whatever state the job was in right
// after dependency wiring settled. The mirror is not kept live in sync
// with later state transitions -- the restart scan always re-derives
// a job's actual state from its on-disk pid/done/exit_code files, so a
// stale state column here only weakens log-scanning convenience, never
// correctness.
func (x *index) record(locator, taskID, state string, submissionTime int64) error {
	_, err := x.db.Exec(
		`INSERT INTO jobs(locator, task_id, state, submission_time) VALUES (?, ?, ?, ?)
		 ON CONFLICT(locator) DO UPDATE SET task_id=excluded.task_id, state=excluded.state`,
		locator, taskID, state, submissionTime)
	if err != nil {
		return xerrors.IO(err, "indexing job %q", locator)
	}
	return nil
}

// indexedJob is one row of the jobs mirror table.
type indexedJob struct {
	Locator        string
	TaskID         string
	State          string
	SubmissionTime int64
}

// list returns every indexed job, for the restart scan to enumerate
// before it re-derives live state from the filesystem.
func (x *index) list() ([]indexedJob, error) {
	rows, err := x.db.Query(`SELECT locator, task_id, state, submission_time FROM jobs`)
	if err != nil {
		return nil, xerrors.IO(err, "listing indexed jobs")
	}
	defer rows.Close()

	var out []indexedJob
	for rows.Next() {
		var r indexedJob
		if err := rows.Scan(&r.Locator, &r.TaskID, &r.State, &r.SubmissionTime); err != nil {
			return nil, xerrors.IO(err, "scanning indexed job row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (x *index) close() error {
	return x.db.Close()
}

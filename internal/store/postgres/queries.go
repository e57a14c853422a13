package postgres

const jobColumns = `
    id, requester_id, translator_id, language_id, status,
    due_at, duration_minutes, cancelled_by, completed_at,
    version, created_at, updated_at`

const queryGetJobByID = `
SELECT` + jobColumns + `
FROM jobs
WHERE id = $1
`

const queryInsertJob = `
INSERT INTO jobs (requester_id, translator_id, language_id, status, due_at, duration_minutes, cancelled_by, completed_at, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
RETURNING id, version
`

// The version predicate makes the fetch-mutate-save cycle atomic per job:
// PostgreSQL takes the row lock before evaluating WHERE, so of two writers
// holding the same version exactly one matches.
const queryUpdateJob = `
UPDATE jobs
SET translator_id = $3,
    language_id = $4,
    status = $5,
    due_at = $6,
    duration_minutes = $7,
    cancelled_by = $8,
    completed_at = $9,
    updated_at = $10,
    version = version + 1
WHERE id = $1
  AND version = $2
RETURNING version, created_at
`

const queryJobExists = `
SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)
`

const queryListJobsByRequester = `
SELECT` + jobColumns + `
FROM jobs
WHERE requester_id = $1
ORDER BY id
`

const queryListPendingJobsByLanguages = `
SELECT` + jobColumns + `
FROM jobs
WHERE status = 'pending'
  AND language_id = ANY($1)
ORDER BY id
`

const queryGetUser = `
SELECT
    u.id, u.name, u.email,
    COALESCE(array_agg(ul.language_id ORDER BY ul.language_id) FILTER (WHERE ul.language_id IS NOT NULL), '{}')
FROM users u
LEFT JOIN user_languages ul ON ul.user_id = u.id
WHERE u.id = $1
GROUP BY u.id, u.name, u.email
`

const queryUserExists = `
SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)
`

const queryLanguageExists = `
SELECT EXISTS (SELECT 1 FROM languages WHERE id = $1)
`

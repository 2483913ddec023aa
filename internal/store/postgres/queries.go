package postgres

const queryGetProject = `
SELECT id, name
FROM projects
WHERE id = $1
`

const queryGetUser = `
SELECT id, name, email
FROM users
WHERE id = $1
`

const queryInsertDeadLetter = `
INSERT INTO dead_letters (id, queue, event_id, envelope, attempts, last_error, failed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryListDeadLetters = `
SELECT id, queue, event_id, envelope, attempts, last_error, failed_at
FROM dead_letters
ORDER BY failed_at ASC
LIMIT $1 OFFSET $2
`

const queryGetDeadLetter = `
SELECT id, queue, event_id, envelope, attempts, last_error, failed_at
FROM dead_letters
WHERE id = $1
`

const queryDeleteDeadLetter = `
DELETE FROM dead_letters WHERE id = $1
`

const queryCountDeadLetters = `
SELECT COUNT(*) FROM dead_letters
`

const queryPurgeDeadLetters = `
DELETE FROM dead_letters WHERE failed_at < $1
`

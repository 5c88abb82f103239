// Package cache keeps computed course statistics in Redis.
//
// Stats are JSON-encoded under enrollcore:stats:<courseId> with a TTL. The
// enrollment service reads through the cache and invalidates a course's key
// after every committed enroll, unenroll or progress change; cache errors are
// logged by the caller and never fail an operation.
//
// Each course also has a generation under enrollcore:statsgen:<courseId>.
// Invalidate bumps it, and Set only writes when the generation still matches
// the one Get returned, so stats computed across a commit are never cached.
package cache

// Package annotation stores crowd-sourced labels for RAW images and derives
// one accepted value per (image, key) by weighted voting.
//
// Every user holds at most one proposal per image and key. Proposals are
// normalized (trimmed, whitespace-collapsed, case-folded) so "Sony" and
// "sony " reinforce each other. A value's score is the sum over its
// proposals of the author's weight plus the weights of every other voter;
// an author who votes on their own proposal replaces the implicit author
// weight rather than adding to it. The winner is the highest score, then the
// value proposed earliest, then the lexicographically smallest value, so the
// outcome depends only on stored rows and never on read order.
//
// Consensus is recomputed on every read. The Store is backed by SQLite; busy
// writes are retried with backoff.
package annotation

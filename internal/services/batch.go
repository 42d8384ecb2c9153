package services

import (
    "strconv"

    "github.com/mozilla/tsci/internal/domain"
)

// duplicateCandidate pairs a webcompat.com issue number with the Bugzilla bug
// whose see-also field referenced it.
type duplicateCandidate struct {
    Issue int
    Bug   int64
}

// batchQueries partitions the candidates into search queries no longer than
// maxLen, each seeded with base. Identifiers are appended greedily as
// "+<id>"; when the next one would overflow, the batch is sealed and a new
// one starts. Every candidate lands in exactly one batch; no candidates, no
// batches.
func batchQueries(candidates []duplicateCandidate, maxLen int, base string) []domain.QueryBatch {
    var batches []domain.QueryBatch
    query := base
    issueToBug := map[int]int64{}
    for _, c := range candidates {
        id := strconv.Itoa(c.Issue)
        if len(query)+1+len(id) > maxLen {
            batches = append(batches, domain.QueryBatch{Query: query, IssueToBug: issueToBug})
            query = base
            issueToBug = map[int]int64{}
        }
        query += "+" + id
        issueToBug[c.Issue] = c.Bug
    }
    if query != base {
        batches = append(batches, domain.QueryBatch{Query: query, IssueToBug: issueToBug})
    }
    return batches
}

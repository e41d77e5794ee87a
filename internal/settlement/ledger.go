// Package settlement aggregates per-receipt allocations into net balances
// between pairs of participants. The ledger is a pure function of the
// finalized-receipt set: it holds no state, so recomputation is idempotent
// and independent of the order receipts were finalized in.
package settlement

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

// pair is an unordered participant pair in canonical form: A sorts before B
// by raw uuid bytes.
type pair struct {
	a, b uuid.UUID
}

func canonical(x, y uuid.UUID) pair {
	if bytes.Compare(x[:], y[:]) <= 0 {
		return pair{a: x, b: y}
	}
	return pair{a: y, b: x}
}

// Compute derives the full settlement entry set for a group from its
// finalized receipts and their participant shares. For each receipt the
// uploader is presumed to have paid the bill, so every other assigned
// participant owes the uploader their share. Exactly one directed entry is
// emitted per unordered pair with a nonzero net; entries are sorted by
// (debtor, creditor) so identical input yields byte-identical output.
func Compute(receipts []*models.ReceiptDraft, shares map[uuid.UUID][]models.ParticipantShare) ([]models.SettlementEntry, error) {
	nets := make(map[pair]money.Money)
	contributing := make(map[pair][]uuid.UUID)

	for _, r := range receipts {
		if r.Status != models.StatusFinalized {
			return nil, fmt.Errorf("receipt %s is %q, settlement only reads finalized receipts", r.ID, r.Status)
		}
		for _, share := range shares[r.ID] {
			if share.ParticipantID == r.UploadedBy {
				continue
			}
			p := canonical(share.ParticipantID, r.UploadedBy)
			net, ok := nets[p]
			if !ok {
				net = money.Zero(share.Owed.Currency)
			}
			// Positive net means A owes B.
			signed := share.Owed
			if p.a != share.ParticipantID {
				signed = signed.Neg()
			}
			var err error
			net, err = net.Add(signed)
			if err != nil {
				return nil, fmt.Errorf("receipt %s: %w", r.ID, err)
			}
			nets[p] = net
			contributing[p] = append(contributing[p], r.ID)
		}
	}

	var entries []models.SettlementEntry
	for p, net := range nets {
		if net.IsZero() {
			continue
		}
		debtor, creditor := p.a, p.b
		if net.Amount < 0 {
			debtor, creditor = p.b, p.a
		}
		ids := dedupSorted(contributing[p])
		entries = append(entries, models.SettlementEntry{
			DebtorID:   debtor,
			CreditorID: creditor,
			Amount:     net.Abs(),
			ReceiptIDs: ids,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if c := bytes.Compare(entries[i].DebtorID[:], entries[j].DebtorID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(entries[i].CreditorID[:], entries[j].CreditorID[:]) < 0
	})
	return entries, nil
}

// ComputeForPair recomputes the single entry for one unordered pair from the
// full finalized set. Adding a receipt only changes the pairs it touches, so
// recomputing those pairs and keeping the rest matches a full recomputation;
// the equivalence is exercised in tests.
func ComputeForPair(receipts []*models.ReceiptDraft, shares map[uuid.UUID][]models.ParticipantShare, x, y uuid.UUID) (*models.SettlementEntry, error) {
	entries, err := Compute(receipts, shares)
	if err != nil {
		return nil, err
	}
	want := canonical(x, y)
	for i := range entries {
		if canonical(entries[i].DebtorID, entries[i].CreditorID) == want {
			return &entries[i], nil
		}
	}
	return nil, nil
}

func dedupSorted(ids []uuid.UUID) []uuid.UUID {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
)

func newPalletService(f *fixture) *PalletService {
	return NewPalletService(f.pallets, nil, nil, zerolog.Nop())
}

func TestPalletService_CreateThenQueryAll(t *testing.T) {
	f := newFixture()
	svc := newPalletService(f)

	created, err := svc.Create(context.Background(), ports.CreatePalletInput{
		Status:   domain.PalletAvailable,
		Category: "grid-9",
		Position: domain.Position{121.544, 25.018},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated key")
	}

	all, err := svc.QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll returned error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 pallet, got %d", len(all))
	}
	got := all[0]
	if got.ID != created.ID || got.Category != "grid-9" || got.Contents != "" || got.Holder != "" ||
		got.Status != domain.PalletAvailable || got.Position != (domain.Position{121.544, 25.018}) {
		t.Fatalf("unexpected pallet: %+v", got)
	}
}

func TestPalletService_CreateDefaultsAndRefusals(t *testing.T) {
	f := newFixture()
	svc := newPalletService(f)

	p, err := svc.Create(context.Background(), ports.CreatePalletInput{Category: "grid-1"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.Status != domain.PalletAvailable {
		t.Fatalf("expected default status static, got %s", p.Status)
	}

	cases := []struct {
		name string
		in   ports.CreatePalletInput
		want error
	}{
		{"claimed status", ports.CreatePalletInput{Status: domain.PalletClaimed, Holder: "alice"}, domain.ErrInvalidTransition},
		{"holder without claim", ports.CreatePalletInput{Holder: "alice"}, domain.ErrInconsistentState},
		{"unknown status", ports.CreatePalletInput{Status: "lost"}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPalletService_CreateStoreError(t *testing.T) {
	f := newFixture()
	svc := NewPalletService(&failingInsert{f.pallets}, nil, nil, zerolog.Nop())

	if _, err := svc.Create(context.Background(), ports.CreatePalletInput{}); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
}

type failingInsert struct {
	ports.PalletRepository
}

func (f *failingInsert) Insert(context.Context, *domain.Pallet) (string, error) {
	return "", errStoreDown
}

func TestPalletService_Amend(t *testing.T) {
	f := newFixture()
	id := f.addPallet(t, domain.Pallet{Category: "grid-1"})
	svc := newPalletService(f)

	broken := domain.PalletBroken
	contents := "bolts"
	p, err := svc.Amend(context.Background(), ports.AmendPalletInput{ID: id, Status: &broken, Contents: &contents})
	if err != nil {
		t.Fatalf("Amend returned error: %v", err)
	}
	if p.Status != domain.PalletBroken || p.Contents != "bolts" || p.Category != "grid-1" {
		t.Fatalf("unexpected pallet after amend: %+v", p)
	}

	available := domain.PalletAvailable
	if _, err := svc.Amend(context.Background(), ports.AmendPalletInput{ID: id, Status: &available}); err != nil {
		t.Fatalf("broken -> static should be allowed: %v", err)
	}
}

func TestPalletService_AmendRefusals(t *testing.T) {
	f := newFixture()
	f.addUser(t, "alice")
	free := f.addPallet(t, domain.Pallet{})
	held := f.addPallet(t, domain.Pallet{})
	if _, err := f.assignment().Claim(context.Background(), held, "alice"); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	svc := newPalletService(f)

	claimed := domain.PalletClaimed
	available := domain.PalletAvailable
	broken := domain.PalletBroken
	bob := "bob"

	cases := []struct {
		name string
		in   ports.AmendPalletInput
		want error
	}{
		{"enter claimed", ports.AmendPalletInput{ID: free, Status: &claimed, Holder: &bob}, domain.ErrInvalidTransition},
		{"leave claimed", ports.AmendPalletInput{ID: held, Status: &available}, domain.ErrInvalidTransition},
		{"claimed to broken", ports.AmendPalletInput{ID: held, Status: &broken}, domain.ErrInvalidTransition},
		{"change holder", ports.AmendPalletInput{ID: held, Holder: &bob}, domain.ErrInconsistentState},
		{"unknown pallet", ports.AmendPalletInput{ID: "665f1c2e9b1e8a0012345678", Status: &broken}, domain.ErrPalletNotFound},
		{"missing id", ports.AmendPalletInput{}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Amend(context.Background(), tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	f.assertConsistent(t, "alice")

	// moving a held pallet's position keeps the claim intact
	pos := domain.Position{9, 9}
	p, err := svc.Amend(context.Background(), ports.AmendPalletInput{ID: held, Position: &pos})
	if err != nil {
		t.Fatalf("Amend returned error: %v", err)
	}
	if p.Holder != "alice" || p.Position != pos {
		t.Fatalf("unexpected pallet: %+v", p)
	}
}

func TestPalletService_ListSelections(t *testing.T) {
	f := newFixture()
	f.addPallet(t, domain.Pallet{Category: "grid-2", Contents: "nuts"})
	f.addPallet(t, domain.Pallet{Category: "grid-1", Contents: "bolts"})
	f.addPallet(t, domain.Pallet{Category: "grid-3", Contents: "bolts"})
	f.addPallet(t, domain.Pallet{Category: "grid-4"})
	f.addPallet(t, domain.Pallet{Category: "grid-4"})
	f.addPallet(t, domain.Pallet{Category: ""})
	f.addPallet(t, domain.Pallet{Category: "grid-5", Contents: "screws", Status: domain.PalletBroken})
	f.addPallet(t, domain.Pallet{Category: "grid-6", Status: domain.PalletBroken})
	svc := newPalletService(f)

	contents, err := svc.ListSelections(context.Background(), true)
	if err != nil {
		t.Fatalf("ListSelections returned error: %v", err)
	}
	if want := []string{SelectionLabelContents, "bolts", "nuts"}; !slices.Equal(contents, want) {
		t.Fatalf("expected %v, got %v", want, contents)
	}

	categories, err := svc.ListSelections(context.Background(), false)
	if err != nil {
		t.Fatalf("ListSelections returned error: %v", err)
	}
	if want := []string{SelectionLabelCategory, "grid-4"}; !slices.Equal(categories, want) {
		t.Fatalf("expected %v, got %v", want, categories)
	}
}

func TestPalletService_QueryAvailable(t *testing.T) {
	f := newFixture()
	emptyGrid1 := f.addPallet(t, domain.Pallet{Category: "grid-1"})
	f.addPallet(t, domain.Pallet{Category: "grid-1", Contents: "bolts"})
	f.addPallet(t, domain.Pallet{Category: "grid-1", Status: domain.PalletBroken})
	bolts := f.addPallet(t, domain.Pallet{Category: "grid-2", Contents: "bolts"})
	svc := newPalletService(f)

	byType, err := svc.QueryAvailable(context.Background(), ports.MatchCategory, "grid-1")
	if err != nil {
		t.Fatalf("QueryAvailable returned error: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != emptyGrid1 {
		t.Fatalf("expected only the empty grid-1 pallet, got %+v", byType)
	}

	byContents, err := svc.QueryAvailable(context.Background(), ports.MatchContents, "bolts")
	if err != nil {
		t.Fatalf("QueryAvailable returned error: %v", err)
	}
	if len(byContents) != 2 || byContents[1].ID != bolts {
		t.Fatalf("expected both bolts pallets, got %+v", byContents)
	}

	if _, err := svc.QueryAvailable(context.Background(), ports.MatchKind("weight"), "1"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

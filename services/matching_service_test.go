package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
)

type fakeTree struct {
	users map[primitive.ObjectID]*models.User
}

func newFakeTree() *fakeTree {
	return &fakeTree{users: make(map[primitive.ObjectID]*models.User)}
}

func (t *fakeTree) add(sponsorID *primitive.ObjectID, position, name string) primitive.ObjectID {
	id := primitive.NewObjectID()
	t.users[id] = &models.User{
		ID:        id,
		FullName:  name,
		SponsorID: sponsorID,
		Position:  position,
	}
	return id
}

func (t *fakeTree) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	user, ok := t.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

type fakeLedgerStore struct {
	ledgers map[primitive.ObjectID]*models.LegLedger
	saves   int
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{ledgers: make(map[primitive.ObjectID]*models.LegLedger)}
}

func (s *fakeLedgerStore) GetOrCreate(_ context.Context, sponsorID primitive.ObjectID) (*models.LegLedger, error) {
	if ledger, ok := s.ledgers[sponsorID]; ok {
		return ledger, nil
	}
	ledger := models.NewLegLedger(sponsorID)
	s.ledgers[sponsorID] = ledger
	return ledger, nil
}

func (s *fakeLedgerStore) Save(_ context.Context, ledger *models.LegLedger) error {
	s.saves++
	s.ledgers[ledger.SponsorID] = ledger
	return nil
}

type fakeIncomeStore struct {
	records []*models.IncomeRecord
	byKey   map[string]*models.IncomeRecord
}

func newFakeIncomeStore() *fakeIncomeStore {
	return &fakeIncomeStore{byKey: make(map[string]*models.IncomeRecord)}
}

func incomeKey(record *models.IncomeRecord) string {
	return record.UserID.Hex() + "/" + record.SourceSaleID.Hex() + "/" + record.IncomeType
}

func (s *fakeIncomeStore) Insert(_ context.Context, record *models.IncomeRecord) (bool, error) {
	key := incomeKey(record)
	if s.byKey[key] != nil {
		return false, nil
	}
	stored := *record
	s.byKey[key] = &stored
	s.records = append(s.records, &stored)
	return true, nil
}

func (s *fakeIncomeStore) UpsertCalculated(_ context.Context, record *models.IncomeRecord) (bool, error) {
	key := incomeKey(record)
	if existing := s.byKey[key]; existing != nil {
		if existing.Status == "" || existing.Status == models.IncomeStatusCalculated {
			id := existing.ID
			*existing = *record
			existing.ID = id
		}
		return false, nil
	}
	stored := *record
	s.byKey[key] = &stored
	s.records = append(s.records, &stored)
	return true, nil
}

func (s *fakeIncomeStore) forUser(userID primitive.ObjectID) []*models.IncomeRecord {
	out := []*models.IncomeRecord{}
	for _, record := range s.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

func fragmentForTest(amount int64) models.SaleFragment {
	return models.SaleFragment{
		SaleID:      primitive.NewObjectID(),
		PlotNumber:  "7",
		BuyerID:     primitive.NewObjectID(),
		BuyerName:   "Seed",
		TotalAmount: amount,
		SaleDate:    time.Now(),
	}
}

func saleEvent(buyerID primitive.ObjectID, amount int64) SaleApprovedEvent {
	return SaleApprovedEvent{
		EventID:    "evt-test",
		SaleID:     primitive.NewObjectID(),
		PlotNumber: "42",
		BuyerID:    buyerID,
		BuyerName:  "Buyer",
		Amount:     amount,
		SaleDate:   time.Now(),
	}
}

// buildTestTree wires root -> A (left), with B and C under A on the left
// and right.
func buildTestTree() (tree *fakeTree, root, a, b, c primitive.ObjectID) {
	tree = newFakeTree()
	root = tree.add(nil, "", "Root")
	a = tree.add(&root, models.PositionLeft, "A")
	b = tree.add(&a, models.PositionLeft, "B")
	c = tree.add(&a, models.PositionRight, "C")
	return tree, root, a, b, c
}

func TestProcessSaleRejectsNonPositiveAmount(t *testing.T) {
	tree, _, _, b, _ := buildTestTree()
	svc := NewMatchingService(tree, newFakeLedgerStore(), newFakeIncomeStore(), noopLocker{}, nil)

	err := svc.ProcessSaleApproved(context.Background(), saleEvent(b, 0))
	if !errors.Is(err, models.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
}

func TestProcessSaleCreditsPersonalCommission(t *testing.T) {
	tree, _, _, b, _ := buildTestTree()
	incomes := newFakeIncomeStore()
	svc := NewMatchingService(tree, newFakeLedgerStore(), incomes, noopLocker{}, nil)

	if err := svc.ProcessSaleApproved(context.Background(), saleEvent(b, 200_000_00)); err != nil {
		t.Fatal(err)
	}

	records := incomes.forUser(b)
	if len(records) != 1 {
		t.Fatalf("buyer has %d records, want 1", len(records))
	}
	record := records[0]
	if record.IncomeType != models.IncomeTypePersonalSale {
		t.Errorf("IncomeType = %s", record.IncomeType)
	}
	if record.IncomeAmount != 10_000_00 {
		t.Errorf("IncomeAmount = %d, want %d", record.IncomeAmount, 10_000_00)
	}
	if record.LegType != models.LegTypePersonal {
		t.Errorf("LegType = %s", record.LegType)
	}
}

func TestProcessSalePropagatesUpTheChain(t *testing.T) {
	tree, root, a, b, c := buildTestTree()
	ledgers := newFakeLedgerStore()
	incomes := newFakeIncomeStore()
	svc := NewMatchingService(tree, ledgers, incomes, noopLocker{}, nil)

	// B's sale lands on A's left leg and the root's left leg.
	if err := svc.ProcessSaleApproved(context.Background(), saleEvent(b, 200_000_00)); err != nil {
		t.Fatal(err)
	}
	// C's sale lands on A's right leg and, since A hangs on the root's
	// left side, also on the root's left leg.
	if err := svc.ProcessSaleApproved(context.Background(), saleEvent(c, 150_000_00)); err != nil {
		t.Fatal(err)
	}

	aLedger := ledgers.ledgers[a]
	if aLedger.LeftLeg.TotalSales != 200_000_00 || aLedger.RightLeg.TotalSales != 150_000_00 {
		t.Fatalf("A legs = (%d, %d)", aLedger.LeftLeg.TotalSales, aLedger.RightLeg.TotalSales)
	}
	if aLedger.TotalMatchedAmount != 150_000_00 {
		t.Errorf("A matched = %d, want %d", aLedger.TotalMatchedAmount, 150_000_00)
	}
	if aLedger.TotalMatchingIncome != 7_500_00 {
		t.Errorf("A matching income = %d, want %d", aLedger.TotalMatchingIncome, 7_500_00)
	}
	if cfLeg, cfAmount := aLedger.CarryForward(); cfLeg != models.PositionLeft || cfAmount != 50_000_00 {
		t.Errorf("A carry forward = (%s, %d), want (left, %d)", cfLeg, cfAmount, 50_000_00)
	}

	bonuses := []*models.IncomeRecord{}
	for _, record := range incomes.forUser(a) {
		if record.IncomeType == models.IncomeTypeMatchingBonus {
			bonuses = append(bonuses, record)
		}
	}
	if len(bonuses) != 1 {
		t.Fatalf("A has %d matching bonuses, want 1", len(bonuses))
	}
	bonus := bonuses[0]
	if bonus.BalancedAmount != 150_000_00 || bonus.IncomeAmount != 7_500_00 {
		t.Errorf("bonus = balanced %d income %d, want %d and %d",
			bonus.BalancedAmount, bonus.IncomeAmount, 150_000_00, 7_500_00)
	}
	if bonus.LegType != models.PositionRight {
		t.Errorf("bonus LegType = %s, want right (the triggering side)", bonus.LegType)
	}
	if len(bonus.PairedFragments) != 2 {
		t.Errorf("bonus pairs %d fragments, want 2", len(bonus.PairedFragments))
	}

	// Both sales reached the root on its left leg only, so no match there.
	rootLedger := ledgers.ledgers[root]
	if rootLedger.LeftLeg.TotalSales != 350_000_00 {
		t.Errorf("root left leg = %d, want %d", rootLedger.LeftLeg.TotalSales, 350_000_00)
	}
	if rootLedger.TotalMatchedAmount != 0 {
		t.Errorf("root matched = %d, want 0", rootLedger.TotalMatchedAmount)
	}
	if len(incomes.forUser(root)) != 0 {
		t.Errorf("root has income records without a match")
	}
}

func TestProcessSaleIsIdempotent(t *testing.T) {
	tree, _, a, b, c := buildTestTree()
	ledgers := newFakeLedgerStore()
	incomes := newFakeIncomeStore()
	svc := NewMatchingService(tree, ledgers, incomes, noopLocker{}, nil)

	eventB := saleEvent(b, 200_000_00)
	eventC := saleEvent(c, 150_000_00)
	for _, event := range []SaleApprovedEvent{eventB, eventC, eventB, eventC, eventC} {
		if err := svc.ProcessSaleApproved(context.Background(), event); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(incomes.records); got != 3 {
		t.Fatalf("replay grew income records to %d, want 3", got)
	}
	aLedger := ledgers.ledgers[a]
	if aLedger.LeftLeg.TotalSales != 200_000_00 || aLedger.RightLeg.TotalSales != 150_000_00 {
		t.Errorf("replay grew A's legs to (%d, %d)", aLedger.LeftLeg.TotalSales, aLedger.RightLeg.TotalSales)
	}
	if aLedger.TotalMatchingIncome != 7_500_00 {
		t.Errorf("replay grew A's matching income to %d", aLedger.TotalMatchingIncome)
	}
}

// conflictingLedgerStore scripts a version conflict: the first save is
// rejected and the reload sees different leg balances, the way a
// concurrent writer would leave them after the lock expired.
type conflictingLedgerStore struct {
	loads   []*models.LegLedger
	loadIdx int
	saved   *models.LegLedger
	failed  bool
}

func (s *conflictingLedgerStore) GetOrCreate(_ context.Context, _ primitive.ObjectID) (*models.LegLedger, error) {
	ledger := s.loads[s.loadIdx]
	if s.loadIdx < len(s.loads)-1 {
		s.loadIdx++
	}
	return ledger, nil
}

func (s *conflictingLedgerStore) Save(_ context.Context, ledger *models.LegLedger) error {
	if !s.failed {
		s.failed = true
		return repositories.ErrConcurrentModification
	}
	s.saved = ledger
	return nil
}

func TestBonusRecordMatchesLedgerAfterVersionConflict(t *testing.T) {
	tree := newFakeTree()
	sponsor := tree.add(nil, "", "Sponsor")
	buyer := tree.add(&sponsor, models.PositionRight, "Buyer")

	seeded := func(leftAmount int64) *models.LegLedger {
		ledger := models.NewLegLedger(sponsor)
		if _, err := ledger.AddSale(models.PositionLeft, fragmentForTest(leftAmount)); err != nil {
			t.Fatal(err)
		}
		return ledger
	}
	// The first attempt sees 100 on the left and matches 50; the reload
	// sees only 30 left, so the recomputed match is 30.
	ledgers := &conflictingLedgerStore{loads: []*models.LegLedger{seeded(100_00), seeded(30_00)}}
	incomes := newFakeIncomeStore()
	svc := NewMatchingService(tree, ledgers, incomes, noopLocker{}, nil)

	if err := svc.ProcessSaleApproved(context.Background(), saleEvent(buyer, 50_00)); err != nil {
		t.Fatal(err)
	}

	if ledgers.saved == nil {
		t.Fatal("no ledger was saved")
	}
	if ledgers.saved.TotalMatchedAmount != 30_00 {
		t.Fatalf("saved ledger matched %d, want %d", ledgers.saved.TotalMatchedAmount, 30_00)
	}

	bonuses := []*models.IncomeRecord{}
	for _, record := range incomes.forUser(sponsor) {
		if record.IncomeType == models.IncomeTypeMatchingBonus {
			bonuses = append(bonuses, record)
		}
	}
	if len(bonuses) != 1 {
		t.Fatalf("sponsor has %d matching bonuses, want 1", len(bonuses))
	}
	if bonuses[0].BalancedAmount != 30_00 {
		t.Errorf("record balanced %d disagrees with saved ledger's %d", bonuses[0].BalancedAmount, 30_00)
	}
	if bonuses[0].IncomeAmount != ledgers.saved.TotalMatchingIncome {
		t.Errorf("record income %d disagrees with ledger income %d",
			bonuses[0].IncomeAmount, ledgers.saved.TotalMatchingIncome)
	}
	if bonuses[0].IncomeAmount != 1_50 {
		t.Errorf("record income = %d, want %d at 5%% of the recomputed match", bonuses[0].IncomeAmount, 1_50)
	}
}

func TestProcessSaleReportsIncompleteChain(t *testing.T) {
	tree := newFakeTree()
	missing := primitive.NewObjectID()
	buyer := tree.add(&missing, models.PositionLeft, "Orphan")

	incomes := newFakeIncomeStore()
	svc := NewMatchingService(tree, newFakeLedgerStore(), incomes, noopLocker{}, nil)

	err := svc.ProcessSaleApproved(context.Background(), saleEvent(buyer, 100_000_00))
	if !errors.Is(err, ErrChainIncomplete) {
		t.Fatalf("got %v, want ErrChainIncomplete", err)
	}

	// The personal commission and the reachable ledger work are done; a
	// later retry replays them as no-ops.
	if len(incomes.forUser(buyer)) != 1 {
		t.Errorf("buyer has %d records, want the personal commission", len(incomes.forUser(buyer)))
	}
}

func TestProcessSaleStopsAtMaxDepth(t *testing.T) {
	t.Setenv("MATCHING_MAX_DEPTH", "1")

	tree, _, _, b, _ := buildTestTree()
	svc := NewMatchingService(tree, newFakeLedgerStore(), newFakeIncomeStore(), noopLocker{}, nil)

	// B is two levels below the root, so the walk needs depth 2.
	err := svc.ProcessSaleApproved(context.Background(), saleEvent(b, 100_000_00))
	if !errors.Is(err, ErrMatchingDepthExceeded) {
		t.Fatalf("got %v, want ErrMatchingDepthExceeded", err)
	}
}

func TestCommissionRateFromEnvironment(t *testing.T) {
	t.Setenv("COMMISSION_PERCENT", "2.5")

	tree, _, _, b, _ := buildTestTree()
	incomes := newFakeIncomeStore()
	svc := NewMatchingService(tree, newFakeLedgerStore(), incomes, noopLocker{}, nil)

	if err := svc.ProcessSaleApproved(context.Background(), saleEvent(b, 100_000_00)); err != nil {
		t.Fatal(err)
	}

	records := incomes.forUser(b)
	if len(records) != 1 {
		t.Fatalf("buyer has %d records, want 1", len(records))
	}
	if records[0].IncomeAmount != 2_500_00 {
		t.Errorf("IncomeAmount = %d, want %d at 2.5%%", records[0].IncomeAmount, 2_500_00)
	}
	if records[0].CommissionPercentage != "2.5" {
		t.Errorf("CommissionPercentage = %q, want \"2.5\"", records[0].CommissionPercentage)
	}
}

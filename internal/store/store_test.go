package store

import (
	"testing"
	"time"

	"github.com/zulandar/afterhours/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestStore opens an in-memory SQLite store with all tables migrated.
func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(
		&models.Business{},
		&models.Call{},
		&models.RosterEntry{},
		&models.DispatchEvent{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewGormStore(gdb)
}

func seedBusiness(t *testing.T, s *GormStore, id, number string) {
	t.Helper()
	if err := s.db.Create(&models.Business{
		ID: id, Name: "Biz " + id, Trade: "plumbing", DispatchNumber: number,
	}).Error; err != nil {
		t.Fatalf("seed business: %v", err)
	}
}

func strPtr(v string) *string { return &v }

func TestFindBusinessByNumber(t *testing.T) {
	s := openTestStore(t)
	seedBusiness(t, s, "biz-1", "+15550001111")

	b, err := s.FindBusinessByNumber("+15550001111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b == nil || b.ID != "biz-1" {
		t.Fatalf("business = %+v, want biz-1", b)
	}

	none, err := s.FindBusinessByNumber("+15559990000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unregistered number, got %+v", none)
	}
}

func TestFindBusinessByNumber_Empty(t *testing.T) {
	s := openTestStore(t)
	b, err := s.FindBusinessByNumber("")
	if err != nil || b != nil {
		t.Errorf("empty number should be (nil, nil), got (%v, %v)", b, err)
	}
}

func TestListBusinesses_Limit(t *testing.T) {
	s := openTestStore(t)
	seedBusiness(t, s, "biz-1", "+15550001111")
	seedBusiness(t, s, "biz-2", "+15550002222")
	seedBusiness(t, s, "biz-3", "+15550003333")

	bs, err := s.ListBusinesses(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bs) != 2 {
		t.Errorf("len = %d, want 2", len(bs))
	}
}

func TestUpdateCallStatus(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateCall(&models.Call{ID: "call-1", Status: models.CallStatusNew}); err != nil {
		t.Fatalf("create call: %v", err)
	}

	if err := s.UpdateCallStatus("call-1", models.CallStatusConfirmed, "roster-9"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	c, err := s.GetCall("call-1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if c.Status != models.CallStatusConfirmed {
		t.Errorf("status = %q, want confirmed", c.Status)
	}
	if c.AckedBy != "roster-9" {
		t.Errorf("acked_by = %q, want roster-9", c.AckedBy)
	}

	if err := s.UpdateCallStatus("missing", models.CallStatusConfirmed, ""); err == nil {
		t.Error("expected error for unknown call id")
	}
}

func TestActiveRoster_FiltersAndOrder(t *testing.T) {
	s := openTestStore(t)
	seedBusiness(t, s, "biz-1", "+15550001111")

	entries := []models.RosterEntry{
		{ID: "r-backup", BusinessID: "biz-1", Name: "Backup", Phone: "+15550012222", Priority: 2, Active: true, WindowStart: 0, WindowEnd: 1440},
		{ID: "r-primary", BusinessID: "biz-1", Name: "Primary", Phone: "+15550011111", Priority: 1, Active: true, WindowStart: 0, WindowEnd: 1440},
		{ID: "r-inactive", BusinessID: "biz-1", Name: "Off", Phone: "+15550013333", Priority: 0, Active: false, WindowStart: 0, WindowEnd: 1440},
		{ID: "r-daytime", BusinessID: "biz-1", Name: "Day", Phone: "+15550014444", Priority: 0, Active: true, WindowStart: 9 * 60, WindowEnd: 17 * 60},
	}
	for i := range entries {
		if err := s.db.Create(&entries[i]).Error; err != nil {
			t.Fatalf("seed roster: %v", err)
		}
	}

	// 2am: daytime window excluded, inactive excluded, priority order kept.
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	got, err := s.ActiveRoster("biz-1", "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (got %+v)", len(got), got)
	}
	if got[0].ID != "r-primary" || got[1].ID != "r-backup" {
		t.Errorf("order = [%s %s], want [r-primary r-backup]", got[0].ID, got[1].ID)
	}
}

func TestActiveRoster_WrappingWindow(t *testing.T) {
	s := openTestStore(t)
	seedBusiness(t, s, "biz-1", "+15550001111")
	// On-call 10pm..6am.
	if err := s.db.Create(&models.RosterEntry{
		ID: "r-night", BusinessID: "biz-1", Name: "Night", Phone: "+15550011111",
		Priority: 1, Active: true, WindowStart: 22 * 60, WindowEnd: 6 * 60,
	}).Error; err != nil {
		t.Fatalf("seed roster: %v", err)
	}

	at := func(hour int) int {
		now := time.Date(2025, 6, 1, hour, 30, 0, 0, time.UTC)
		got, err := s.ActiveRoster("biz-1", "", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return len(got)
	}

	if n := at(23); n != 1 {
		t.Errorf("11:30pm: len = %d, want 1", n)
	}
	if n := at(3); n != 1 {
		t.Errorf("3:30am: len = %d, want 1", n)
	}
	if n := at(12); n != 0 {
		t.Errorf("12:30pm: len = %d, want 0", n)
	}
}

func TestActiveRoster_TradeFilter(t *testing.T) {
	s := openTestStore(t)
	seedBusiness(t, s, "biz-1", "+15550001111")
	for _, e := range []models.RosterEntry{
		{ID: "r-hvac", BusinessID: "biz-1", Name: "H", Phone: "+1", Trade: "hvac", Priority: 1, Active: true, WindowStart: 0, WindowEnd: 1440},
		{ID: "r-any", BusinessID: "biz-1", Name: "A", Phone: "+2", Trade: "", Priority: 2, Active: true, WindowStart: 0, WindowEnd: 1440},
		{ID: "r-plumb", BusinessID: "biz-1", Name: "P", Phone: "+3", Trade: "plumbing", Priority: 3, Active: true, WindowStart: 0, WindowEnd: 1440},
	} {
		ec := e
		if err := s.db.Create(&ec).Error; err != nil {
			t.Fatalf("seed roster: %v", err)
		}
	}

	got, err := s.ActiveRoster("biz-1", "plumbing", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Trade-matching plus trade-agnostic entries, never the other trade.
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "r-any" || got[1].ID != "r-plumb" {
		t.Errorf("order = [%s %s], want [r-any r-plumb]", got[0].ID, got[1].ID)
	}
}

func TestStaleDispatching(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// Call with a recent event: not stale.
	s.CreateCall(&models.Call{ID: "fresh", Status: models.CallStatusDispatching})
	s.CreateEvent(&models.DispatchEvent{ID: "ev-1", CallID: "fresh", Channel: models.EventChannelText, SentAt: now.Add(-time.Minute)})

	// Call with only an old event: stale.
	s.CreateCall(&models.Call{ID: "lost", Status: models.CallStatusDispatching})
	s.CreateEvent(&models.DispatchEvent{ID: "ev-2", CallID: "lost", Channel: models.EventChannelText, SentAt: now.Add(-30 * time.Minute)})

	// Old call not dispatching: ignored.
	s.CreateCall(&models.Call{ID: "done", Status: models.CallStatusConfirmed})

	got, err := s.StaleDispatching(now.Add(-5 * time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "lost" {
		t.Fatalf("stale = %+v, want exactly [lost]", got)
	}
}

func TestPendingCallForContact(t *testing.T) {
	s := openTestStore(t)
	seedBusiness(t, s, "biz-1", "+15550001111")
	s.db.Create(&models.RosterEntry{
		ID: "r-1", BusinessID: "biz-1", Name: "Tech", Phone: "+15550011111",
		Priority: 1, Active: true, WindowStart: 0, WindowEnd: 1440,
	})
	s.CreateCall(&models.Call{ID: "call-1", Status: models.CallStatusDispatching, BusinessID: strPtr("biz-1")})

	call, entry, err := s.PendingCallForContact("+15550011111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call == nil || call.ID != "call-1" {
		t.Fatalf("call = %+v, want call-1", call)
	}
	if entry == nil || entry.ID != "r-1" {
		t.Fatalf("entry = %+v, want r-1", entry)
	}

	call, entry, err = s.PendingCallForContact("+15559999999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call != nil || entry != nil {
		t.Error("unknown phone should resolve to no pending call")
	}
}

func TestUpdateEventDelivery(t *testing.T) {
	s := openTestStore(t)
	s.CreateEvent(&models.DispatchEvent{
		ID: "ev-1", CallID: "call-1", Channel: models.EventChannelText,
		ProviderSID: "SM123", DeliveryStatus: "SENT", SentAt: time.Now(),
	})

	if err := s.UpdateEventDelivery("SM123", "DELIVERED", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evts, _ := s.EventsForCall("call-1")
	if len(evts) != 1 || evts[0].DeliveryStatus != "DELIVERED" {
		t.Fatalf("events = %+v, want DELIVERED", evts)
	}

	// Unknown SID is a silent no-op.
	if err := s.UpdateEventDelivery("SM999", "FAILED", "30005"); err != nil {
		t.Errorf("unknown sid should not error: %v", err)
	}
}

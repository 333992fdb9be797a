package tray

import "testing"

func TestMenuStateBeforeRun(t *testing.T) {
	tr := New("test")
	receiver := tr.AddCheckItem("Receiver", true, nil)
	tr.AddSeparator()
	quit := tr.AddMenuItem("Quit", nil)

	tr.SetItemChecked(receiver, false)
	tr.SetItemChecked(42, true)
	tr.SetStatus("Ready - desk")

	if tr.items[receiver].checked {
		t.Error("receiver item should be unchecked")
	}
	if !tr.items[receiver].check || tr.items[quit].check {
		t.Error("only the receiver item is a check item")
	}
	if tr.items[1] != nil {
		t.Error("item 1 should be a separator")
	}
	if tr.status != "Ready - desk" {
		t.Errorf("status = %q", tr.status)
	}
}

package diff

import "github.com/ekaya-inc/bomdiff-engine/pkg/models"

// fixtureSourceRows and fixtureTargetRows cover one of every common outcome:
// unchanged, quantity change, move, removal, addition and a fuzzy re-numbering.
func fixtureSourceRows() []models.ComparableRow {
	return []models.ComparableRow{
		{RowID: "s-001", InternalID: "INT-001", PartNumber: "PN-100", Revision: "A", Description: "Bracket", Quantity: qty(2), Supplier: "Acme", ParentPath: "/root", Position: "10"},
		{RowID: "s-002", InternalID: "INT-002", PartNumber: "PN-200", Revision: "A", Description: "Screw", Quantity: qty(10), Supplier: "BoltCo", ParentPath: "/root", Position: "20"},
		{RowID: "s-003", InternalID: "INT-003", PartNumber: "PN-300", Revision: "A", Description: "Plate", Quantity: qty(1), Supplier: "Acme", ParentPath: "/left", Position: "30"},
		{RowID: "s-004", InternalID: "INT-004", PartNumber: "PN-400", Revision: "A", Description: "Motor", Quantity: qty(1), Supplier: "Drive", ParentPath: "/root", Position: "40"},
		{RowID: "s-005", InternalID: "INT-005", PartNumber: "PN-500", Revision: "A", Description: "Switch", Quantity: qty(1), Supplier: "Electra", ParentPath: "/ctrl", Position: "50"},
	}
}

func fixtureTargetRows() []models.ComparableRow {
	return []models.ComparableRow{
		{RowID: "t-001", InternalID: "INT-001", PartNumber: "PN-100", Revision: "A", Description: "Bracket", Quantity: qty(2), Supplier: "Acme", ParentPath: "/root", Position: "10"},
		{RowID: "t-002", InternalID: "INT-002", PartNumber: "PN-200", Revision: "A", Description: "Screw", Quantity: qty(12), Supplier: "BoltCo", ParentPath: "/root", Position: "20"},
		{RowID: "t-003", InternalID: "INT-003", PartNumber: "PN-300", Revision: "A", Description: "Plate", Quantity: qty(1), Supplier: "Acme", ParentPath: "/right", Position: "30"},
		{RowID: "t-006", InternalID: "INT-006", PartNumber: "PN-600", Revision: "A", Description: "Cover", Quantity: qty(1), Supplier: "Acme", ParentPath: "/root", Position: "60"},
		{RowID: "t-005", InternalID: "INT-007", PartNumber: "PN-501", Revision: "A", Description: "Switch", Quantity: qty(1), Supplier: "Electra", ParentPath: "/ctrl", Position: "50"},
	}
}

package model

// Sheet tabs of the workflow workbook
const (
	SheetFMS       = "FMS"
	SheetMaster    = "Master"
	SheetLogin     = "Login"
	SheetInverters = "Inverters"
)

// Field names shared by every stage
const (
	FieldEnquiryNumber = "enquiry_number"
	FieldPlanned       = "planned"
	FieldActual        = "actual"
)

func commonFields(planned, actual int) []FieldDef {
	return []FieldDef{
		{Name: FieldEnquiryNumber, Index: 1, Header: "Enquiry Number", ReadOnly: true},
		{Name: "beneficiary_name", Index: 2, Header: "Beneficiary Name", ReadOnly: true},
		{Name: "contact_number", Index: 3, Header: "Contact Number", ReadOnly: true},
		{Name: "address", Index: 4, ReadOnly: true},
		{Name: "district", Index: 5, ReadOnly: true},
		{Name: "capacity_kw", Index: 6, Header: "Capacity (kW)", ReadOnly: true},
		{Name: "survey_date", Index: 7, Date: true, ReadOnly: true},
		{Name: FieldPlanned, Index: planned, Header: "Planned", Date: true, ReadOnly: true},
		{Name: FieldActual, Index: actual, Header: "Actual", Date: true, ReadOnly: true},
	}
}

func stage(name, title string, trigger, completion, width int, fields ...FieldDef) StageColumnMap {
	return StageColumnMap{
		Name:             name,
		Title:            title,
		Sheet:            SheetFMS,
		HeaderRows:       6,
		TriggerColumn:    trigger,
		CompletionColumn: completion,
		Width:            width,
		Fields:           append(commonFields(trigger, completion), fields...),
	}
}

// DefaultStages returns the built-in stage catalogue in workflow order.
func DefaultStages() []StageColumnMap {
	return []StageColumnMap{
		stage("order", "Order", 20, 21, 28,
			FieldDef{Name: "order_status", Index: 23, Header: "Order Status", Required: true},
			FieldDef{Name: "vendor_name", Index: 24, Required: true},
			FieldDef{Name: "order_date", Index: 25, Date: true, Required: true},
			FieldDef{Name: "order_remarks", Index: 26},
		),
		stage("dispatch", "Dispatch", 30, 31, 40,
			FieldDef{Name: "dispatch_status", Index: 33, Header: "Dispatch Status", Required: true},
			FieldDef{Name: "challan_number", Index: 34, Required: true},
			FieldDef{Name: "dispatch_date", Index: 35, Date: true, Required: true},
			FieldDef{Name: "vehicle_number", Index: 36},
			FieldDef{Name: "challan_copy", Index: 37, File: true},
		),
		stage("notification", "Customer Notification", 45, 46, 52,
			FieldDef{Name: "notification_status", Index: 48, Required: true},
			FieldDef{Name: "notified_on", Index: 49, Date: true, Required: true},
			FieldDef{Name: "customer_response", Index: 50},
		),
		stage("installation", "Installation", 88, 90, 100,
			FieldDef{Name: "installation_status", Index: 92, Header: "Installation Status", Required: true, Group: "details"},
			FieldDef{Name: "installer_name", Index: 93, Required: true, Group: "details"},
			FieldDef{Name: "installation_date", Index: 94, Date: true, Required: true, Group: "details"},
			FieldDef{Name: "inverter_serial", Index: 95, Group: "details"},
			FieldDef{Name: "panel_serials", Index: 96, Group: "details"},
			FieldDef{Name: "site_photo", Index: 97, File: true, Required: true, Group: "photos"},
			FieldDef{Name: "inverter_photo", Index: 98, File: true, Group: "photos"},
			FieldDef{Name: "completion_certificate", Index: 99, File: true, Group: "photos"},
		),
		stage("billing", "Billing", 147, 148, 154,
			FieldDef{Name: "billing_status", Index: 149, Header: "Billing Status", Required: true},
			FieldDef{Name: "invoice_number", Index: 150, Required: true},
			FieldDef{Name: "invoice_amount", Index: 151},
			FieldDef{Name: "invoice_date", Index: 152, Date: true, Required: true},
			FieldDef{Name: "invoice_copy", Index: 153, File: true},
		),
	}
}

// DefaultOptionSets returns the dropdown sources read from the Master tab.
func DefaultOptionSets() []OptionSet {
	return []OptionSet{
		{Name: "order_status", Sheet: SheetMaster, Column: 0, HeaderRows: 1},
		{Name: "dispatch_status", Sheet: SheetMaster, Column: 1, HeaderRows: 1},
		{Name: "installation_options", Sheet: SheetMaster, Column: 2, HeaderRows: 1, Dedupe: true},
		{Name: "billing_status", Sheet: SheetMaster, Column: 3, HeaderRows: 1},
		{Name: "vendors", Sheet: SheetMaster, Column: 4, HeaderRows: 1},
		{Name: "notification_status", Sheet: SheetMaster, Column: 5, HeaderRows: 1},
	}
}

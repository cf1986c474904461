package edi

import (
	"fmt"
	"sort"
	"strings"
	"time"

	billingerrors "github.com/vitalpath/billing-app/billing/errors"
	"github.com/vitalpath/billing-app/billing/models"
	"github.com/vitalpath/billing-app/billing/utils"
	"github.com/vitalpath/billing-app/conf"
)

// RelationshipSelf is the X12 individual-relationship code for a subscriber
// filing on their own behalf. Any other code means the patient is a
// dependent and gets their own NM1*QC loop.
const RelationshipSelf = "18"

const (
	versionCode       = "005010X222A1"
	transactionSetID  = "0001"
	defaultPlaceOfSvc = "81" // independent laboratory
)

// Person carries the demographics rendered into subscriber and patient
// loops.
type Person struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string // M or F
	MemberID    string

	Address string
	City    string
	State   string
	Zip     string
}

// ProviderInfo is the billing provider rendered into the NM1*85 loop.
type ProviderInfo struct {
	OrganizationName string
	NPI              string
	TaxID            string
	TaxonomyCode     string

	Address string
	City    string
	State   string
	Zip     string
}

// PayerInfo identifies the destination payer.
type PayerInfo struct {
	Name string
	ID   string
}

// ProviderConfig loads the billing organization's identity from the
// environment.
type ProviderConfig struct {
	OrganizationName string `conf:"BILLING_PROVIDER_NAME" conf_default:"VitalPath Laboratory"`
	NPI              string `conf:"BILLING_PROVIDER_NPI" conf_default:"1234567890"`
	TaxID            string `conf:"BILLING_PROVIDER_TAX_ID" conf_default:"123456789"`
	TaxonomyCode     string `conf:"BILLING_PROVIDER_TAXONOMY" conf_default:"291U00000X"`
	Address          string `conf:"BILLING_PROVIDER_ADDRESS" conf_default:"100 Lab Way"`
	City             string `conf:"BILLING_PROVIDER_CITY" conf_default:"Austin"`
	State            string `conf:"BILLING_PROVIDER_STATE" conf_default:"TX"`
	Zip              string `conf:"BILLING_PROVIDER_ZIP" conf_default:"78701"`
}

// LoadProviderInfo reads the billing-provider identity used on generated
// claims.
func LoadProviderInfo() (ProviderInfo, error) {
	var config ProviderConfig
	if err := conf.Checkout(&config); err != nil {
		return ProviderInfo{}, err
	}
	return ProviderInfo{
		OrganizationName: config.OrganizationName,
		NPI:              config.NPI,
		TaxID:            config.TaxID,
		TaxonomyCode:     config.TaxonomyCode,
		Address:          config.Address,
		City:             config.City,
		State:            config.State,
		Zip:              config.Zip,
	}, nil
}

// ClaimView is the fully-denormalized input to the generator. Lines may be
// empty only when Biomarkers is not; in that case billable lines are
// synthesized from the biomarker tables in codes.go.
type ClaimView struct {
	Claim      *models.Claim
	Lines      []models.ClaimLine
	Patient    Person
	Subscriber Person
	// X12 individual-relationship code of the patient to the subscriber.
	// Empty is treated as self.
	RelationshipCode string

	Provider ProviderInfo
	Payer    PayerInfo

	Biomarkers []models.Biomarker
	// ServiceDate stamps synthesized lines; explicit lines carry their own.
	ServiceDate time.Time
}

// Generator renders 837P documents. Safe for concurrent use.
type Generator struct {
	senderID   string
	receiverID string
	now        func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{
		senderID:   utils.FromEnv("BILLING_EDI_SENDER_ID", "VITALPATH"),
		receiverID: utils.FromEnv("BILLING_EDI_RECEIVER_ID", "CLEARINGHOUSE"),
		now:        time.Now,
	}
}

// Generate renders the claim view as a complete 837P document: segments
// newline-terminated, fields delimited by "*", in the fixed order downstream
// clearinghouses parse positionally.
func (g *Generator) Generate(view ClaimView) (string, error) {
	if view.Claim == nil {
		return "", &billingerrors.ValidationError{Field: "claim", Msg: "must not be nil"}
	}

	lines := view.Lines
	if len(lines) == 0 {
		synthesized, err := g.synthesizeLines(view)
		if err != nil {
			return "", err
		}
		lines = synthesized
	}

	now := g.now()
	controlNumber := fmt.Sprintf("%09d", view.Claim.ID)

	var segments []string
	seg := func(fields ...string) {
		segments = append(segments, strings.Join(fields, "*"))
	}

	// Interchange and functional-group envelope.
	seg("ISA", "00", strings.Repeat(" ", 10), "00", strings.Repeat(" ", 10),
		"ZZ", pad(g.senderID, 15), "ZZ", pad(g.receiverID, 15),
		now.Format("060102"), now.Format("1504"), "^", "00501", controlNumber, "0", "P", ":")
	seg("GS", "HC", g.senderID, g.receiverID, now.Format("20060102"), now.Format("1504"),
		"1", "X", versionCode)

	// Transaction set. Segment count for SE includes ST and SE themselves.
	stIndex := len(segments)
	seg("ST", "837", transactionSetID, versionCode)
	seg("BHT", "0019", "00", view.Claim.ClaimNumber, now.Format("20060102"), now.Format("1504"), "CH")

	// Submitter and receiver loops.
	seg("NM1", "41", "2", view.Provider.OrganizationName, "", "", "", "", "46", g.senderID)
	seg("NM1", "40", "2", g.receiverID, "", "", "", "", "46", g.receiverID)

	// Billing provider.
	seg("NM1", "85", "2", view.Provider.OrganizationName, "", "", "", "", "XX", view.Provider.NPI)
	seg("PRV", "PE", "PXC", view.Provider.TaxonomyCode)
	if view.Provider.Address != "" {
		seg("N3", view.Provider.Address)
		seg("N4", view.Provider.City, view.Provider.State, view.Provider.Zip)
	}
	if view.Provider.TaxID != "" {
		seg("REF", "EI", view.Provider.TaxID)
	}

	// Subscriber.
	seg("NM1", "IL", "1", view.Subscriber.LastName, view.Subscriber.FirstName, "", "", "",
		"MI", view.Subscriber.MemberID)
	if view.Subscriber.Address != "" {
		seg("N3", view.Subscriber.Address)
		seg("N4", view.Subscriber.City, view.Subscriber.State, view.Subscriber.Zip)
	}
	seg("DMG", "D8", view.Subscriber.DateOfBirth.Format("20060102"), view.Subscriber.Gender)

	// Patient, only when the claim is filed for a dependent.
	if view.RelationshipCode != "" && view.RelationshipCode != RelationshipSelf {
		seg("NM1", "QC", "1", view.Patient.LastName, view.Patient.FirstName)
		seg("DMG", "D8", view.Patient.DateOfBirth.Format("20060102"), view.Patient.Gender)
	}

	// Payer.
	seg("NM1", "PR", "2", view.Payer.Name, "", "", "", "", "PI", view.Payer.ID)

	// Claim.
	seg("CLM", view.Claim.ClaimNumber, currency(view.Claim.TotalCharge), "", "",
		placeOfService(lines)+":B:1", "Y", "A", "Y", "Y")

	// Service lines, in line-number order.
	sorted := make([]models.ClaimLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LineNumber < sorted[j].LineNumber })

	for i, line := range sorted {
		lineNumber := line.LineNumber
		if lineNumber == 0 {
			lineNumber = i + 1
		}
		seg("LX", fmt.Sprintf("%d", lineNumber))

		procedure := "HC:" + line.CPTCode
		if line.Modifier != "" {
			procedure += ":" + line.Modifier
		}
		seg("SV1", procedure, currency(line.Charge), "UN", fmt.Sprintf("%d", line.Units),
			linePlaceOfService(line), "", diagnosisPointers(line))
		if !line.ServiceDate.IsZero() {
			seg("DTP", "472", "D8", line.ServiceDate.Format("20060102"))
		}
		if len(line.ICD10Codes) > 0 {
			seg(diagnosisSegment(line.ICD10Codes)...)
		}
	}

	seg("SE", fmt.Sprintf("%d", len(segments)-stIndex+1), transactionSetID)
	seg("GE", "1", "1")
	seg("IEA", "1", controlNumber)

	return strings.Join(segments, "\n") + "\n", nil
}

// synthesizeLines maps report biomarkers to billable service lines when the
// claim carries no explicit lines.
func (g *Generator) synthesizeLines(view ClaimView) ([]models.ClaimLine, error) {
	if len(view.Biomarkers) == 0 {
		return nil, &billingerrors.ValidationError{Field: "lines",
			Msg: "claim has no lines and no report biomarkers to derive them from"}
	}

	serviceDate := view.ServiceDate
	if serviceDate.IsZero() {
		serviceDate = g.now()
	}

	lines := LinesFromBiomarkers(view.Biomarkers, serviceDate)
	if len(lines) == 0 {
		return nil, &billingerrors.ValidationError{Field: "lines",
			Msg: "no report biomarkers map to billable CPT codes"}
	}
	for i := range lines {
		lines[i].ClaimID = view.Claim.ID
	}

	return lines, nil
}

// LinesFromBiomarkers maps parsed lab biomarkers to billable claim lines
// using the standard CPT and ICD-10 tables. Biomarkers without a known CPT
// code are skipped.
func LinesFromBiomarkers(biomarkers []models.Biomarker, serviceDate time.Time) []models.ClaimLine {
	var lines []models.ClaimLine
	for _, b := range biomarkers {
		cpt, ok := biomarkerCPTCodes[strings.ToLower(b.Name)]
		if !ok {
			continue
		}
		lines = append(lines, models.ClaimLine{
			LineNumber:  len(lines) + 1,
			CPTCode:     cpt,
			Charge:      biomarkerCharges[cpt],
			Units:       1,
			ICD10Codes:  diagnosisCodes(b),
			ServiceDate: serviceDate,
		})
	}
	return lines
}

// diagnosisSegment renders HI*BK:<first>*BF:<rest...>. BK qualifies the
// principal diagnosis; additional codes use BF.
func diagnosisSegment(codes []string) []string {
	fields := []string{"HI", "BK:" + codes[0]}
	for _, c := range codes[1:] {
		fields = append(fields, "BF:"+c)
	}
	return fields
}

// diagnosisPointers renders the 1-based pointer list into the line's own
// diagnosis codes, e.g. "1:2".
func diagnosisPointers(line models.ClaimLine) string {
	if len(line.ICD10Codes) == 0 {
		return "1"
	}
	pointers := make([]string, len(line.ICD10Codes))
	for i := range line.ICD10Codes {
		pointers[i] = fmt.Sprintf("%d", i+1)
	}
	return strings.Join(pointers, ":")
}

func placeOfService(lines []models.ClaimLine) string {
	for _, line := range lines {
		if line.PlaceOfService != "" {
			return line.PlaceOfService
		}
	}
	return defaultPlaceOfSvc
}

func linePlaceOfService(line models.ClaimLine) string {
	if line.PlaceOfService != "" {
		return line.PlaceOfService
	}
	return defaultPlaceOfSvc
}

func currency(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

package constants

// X12 270/271 service type codes used on eligibility requests and when deriving
// coverage flags from payer responses.
const (
	ServiceTypeLab        = "30"
	ServiceTypeGenetic    = "GT"
	ServiceTypePreventive = "98"
)

// Claim number prefix; full format is CLM<YYYYMMDD><4-digit-sequence>.
const ClaimNumberPrefix = "CLM"

// EligibilityCacheHours is how long an EligibilityCheck row stays fresh.
const EligibilityCacheHours = 24

// Task types understood by the billing worker.
const (
	TaskCreateClaim      = "CREATE_CLAIM"
	TaskCheckEligibility = "CHECK_ELIGIBILITY"
	TaskGenerateEDI      = "GENERATE_EDI"
	TaskSubmitClaim      = "SUBMIT_CLAIM"
	TaskCheckStatus      = "CHECK_STATUS"
	TaskFileAppeal       = "FILE_APPEAL"
)

// This is set during compilation.
var Version = "latest"

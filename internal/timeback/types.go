package timeback

// Organization every onboarded student is affiliated with.
const (
	OrgHref      = "https://timeback.com/orgs/84105a1c-29e5-44fc-a497-36a7c61860c5"
	OrgSourcedID = "84105a1c-29e5-44fc-a497-36a7c61860c5"
)

// Profile assignment constants.
const (
	ProfileTypeLearningApp = "learning_app_profile"
	VendorID               = "alpha"
)

// tokenScope is the fixed scope set requested with every token exchange.
const tokenScope = "https://purl.imsglobal.org/spec/or/v1p2/scope/roster.createput" +
	" https://purl.imsglobal.org/spec/or/v1p2/scope/roster.readonly" +
	" https://purl.imsglobal.org/spec/lti/v1p3/scope/lti.readonly" +
	" https://purl.imsglobal.org/spec/lti/v1p3/scope/lti.createput"

// AccountPayload is the student account-creation request. Creation is an
// idempotent upsert keyed by the generated sourcedId.
type AccountPayload struct {
	Student Student `json:"student"`
}

// Student is the rostering representation of a new account.
type Student struct {
	SourcedID          string        `json:"sourcedId"`
	Email              string        `json:"email"`
	Username           string        `json:"username"`
	Status             string        `json:"status"`
	EnabledUser        string        `json:"enabledUser"`
	GivenName          string        `json:"givenName"`
	FamilyName         string        `json:"familyName"`
	PreferredFirstName string        `json:"preferredFirstName"`
	Grades             []string      `json:"grades"`
	PrimaryOrg         Org           `json:"primaryOrg"`
	Demographics       *Demographics `json:"demographics,omitempty"`
}

// Org references the organization a student belongs to.
type Org struct {
	Href      string `json:"href"`
	SourcedID string `json:"sourcedId"`
	Type      string `json:"type"`
}

// Demographics carries the optional birth-date block.
type Demographics struct {
	BirthDate string `json:"birthDate"`
}

// ProfileAssignment grants a student account access to an application or
// assessment. The target user is addressed in the URL path, not the body.
type ProfileAssignment struct {
	ProfileID     string `json:"profileId"`
	ApplicationID string `json:"applicationId"`
	ProfileType   string `json:"profileType"`
	VendorID      string `json:"vendorId"`
	Description   string `json:"description"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type studentResponse struct {
	Student struct {
		SourcedID string `json:"sourcedId"`
	} `json:"student"`
}

type applicationsResponse struct {
	Applications []struct {
		Name      string `json:"name"`
		SourcedID string `json:"sourcedId"`
	} `json:"applications"`
	Pagination struct {
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

package entrasync

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prestonprussell/ITLicensingBreakdown/config"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope   = "https://graph.microsoft.com/.default"
)

// skuPartToLicense maps Graph skuPartNumber values onto the canonical
// license tokens the Integricom allocation rules key on. Unmapped SKUs are
// collected and reported, never silently dropped.
var skuPartToLicense = map[string]string{
	// Microsoft 365 Business Premium variants
	"SPB":                   "Microsoft 365 Business Premium",
	"O365_BUSINESS_PREMIUM": "Microsoft 365 Business Premium",
	"SMB_BUSINESS_PREMIUM":  "Microsoft 365 Business Premium",
	// Exchange Online Plan 1 variants
	"EXCHANGESTANDARD":    "Exchange Online (Plan 1)",
	"EXCHANGE_S_STANDARD": "Exchange Online (Plan 1)",
	// Exchange Online Plan 2
	"EXCHANGEENTERPRISE": "Exchange Online (Plan 2)",
	// Microsoft 365 F3
	"SPE_F3": "Microsoft 365 F3",
	// Teams Essentials variants
	"TEAMS_ESSENTIALS_AAD": "Microsoft Teams Essentials",
	"TEAMS_ESSENTIALS":     "Microsoft Teams Essentials",
}

// graphClient is the Microsoft Graph MemberSource. Credentials come from
// ENTRA_TENANT_ID, ENTRA_CLIENT_ID and ENTRA_CLIENT_SECRET.
type graphClient struct {
	tenantId     string
	clientId     string
	clientSecret string
	http         *http.Client
}

func NewGraphClient() (MemberSource, error) {
	tenantId := strings.TrimSpace(os.Getenv("ENTRA_TENANT_ID"))
	clientId := strings.TrimSpace(os.Getenv("ENTRA_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("ENTRA_CLIENT_SECRET"))
	if tenantId == "" || clientId == "" || clientSecret == "" {
		return nil, errors.New("missing Entra configuration; set ENTRA_TENANT_ID, ENTRA_CLIENT_ID, and ENTRA_CLIENT_SECRET")
	}
	return &graphClient{
		tenantId:     tenantId,
		clientId:     clientId,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type graphUser struct {
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
	OfficeLocation    string `json:"officeLocation"`
	AssignedLicenses  []struct {
		SkuId string `json:"skuId"`
	} `json:"assignedLicenses"`
}

type graphSku struct {
	SkuId         string `json:"skuId"`
	SkuPartNumber string `json:"skuPartNumber"`
}

func (c *graphClient) FetchMembers() (*MemberSet, error) {
	token, err := c.acquireToken()
	if err != nil {
		return nil, err
	}

	skuIdToPart, err := c.subscribedSkuMap(token)
	if err != nil {
		return nil, err
	}

	usersURL := graphBaseURL + "/users?$select=givenName,surname,userPrincipalName,mail,officeLocation,assignedLicenses&$top=999"
	var users []graphUser
	if err := c.getPaginated(usersURL, token, &users); err != nil {
		return nil, err
	}

	return buildMemberSet(users, skuIdToPart, config.GetAllocationConfig()), nil
}

// buildMemberSet maps raw Graph user records onto directory members: guests
// and unlicensed accounts are skipped and counted, assigned SKUs fold to
// canonical license names, and office locations map to branches.
func buildMemberSet(users []graphUser, skuIdToPart map[string]string, cfg *config.AllocationConfig) *MemberSet {
	set := &MemberSet{UnknownSkuParts: []string{}, Warnings: []string{}}
	unknownSkuParts := map[string]bool{}

	for _, user := range users {
		set.UsersScanned++
		email := strings.ToLower(strings.TrimSpace(user.UserPrincipalName))
		if email == "" {
			email = strings.ToLower(strings.TrimSpace(user.Mail))
		}
		if email == "" {
			set.SkippedUnlicensed++
			continue
		}
		if strings.Contains(email, "#ext#") {
			set.SkippedExternal++
			continue
		}
		if len(user.AssignedLicenses) == 0 {
			set.SkippedUnlicensed++
			continue
		}

		licenses := []string{}
		for _, assigned := range user.AssignedLicenses {
			skuId := strings.ToLower(strings.TrimSpace(assigned.SkuId))
			if skuId == "" {
				continue
			}
			skuPart := skuIdToPart[skuId]
			canonical := skuPartToLicense[strings.ToUpper(skuPart)]
			switch {
			case canonical != "" && !containsString(licenses, canonical):
				licenses = append(licenses, canonical)
			case canonical == "" && skuPart != "":
				unknownSkuParts[skuPart] = true
			}
		}
		if len(licenses) == 0 {
			set.SkippedUnlicensed++
			continue
		}

		office := strings.TrimSpace(user.OfficeLocation)
		branch := office
		if mapped, ok := cfg.Integricom.BranchAliases[office]; ok {
			branch = mapped
		} else if office == "" {
			branch = cfg.HomeOffice
		}

		set.Members = append(set.Members, Member{
			Email:     email,
			FirstName: strings.TrimSpace(user.GivenName),
			LastName:  strings.TrimSpace(user.Surname),
			Branch:    branch,
			Licenses:  licenses,
		})
	}

	for skuPart := range unknownSkuParts {
		set.UnknownSkuParts = append(set.UnknownSkuParts, skuPart)
	}
	sort.Strings(set.UnknownSkuParts)
	if len(set.UnknownSkuParts) > 0 {
		preview := set.UnknownSkuParts
		if len(preview) > 12 {
			preview = preview[:12]
		}
		set.Warnings = append(set.Warnings, "Unmapped Entra license SKUs were ignored: "+strings.Join(preview, ", "))
	}
	return set
}

func (c *graphClient) acquireToken() (string, error) {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.tenantId)
	form := url.Values{
		"client_id":     {c.clientId},
		"client_secret": {c.clientSecret},
		"scope":         {graphScope},
		"grant_type":    {"client_credentials"},
	}

	resp, err := c.http.PostForm(tokenURL, form)
	if err != nil {
		return "", fmt.Errorf("graph token request error: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("graph token request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("graph token response was not valid JSON: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", errors.New("graph token response did not include an access token")
	}
	return payload.AccessToken, nil
}

func (c *graphClient) subscribedSkuMap(token string) (map[string]string, error) {
	var skus []graphSku
	if err := c.getPaginated(graphBaseURL+"/subscribedSkus?$select=skuId,skuPartNumber", token, &skus); err != nil {
		return nil, err
	}

	mapping := make(map[string]string, len(skus))
	for _, sku := range skus {
		skuId := strings.ToLower(strings.TrimSpace(sku.SkuId))
		skuPart := strings.TrimSpace(sku.SkuPartNumber)
		if skuId != "" && skuPart != "" {
			mapping[skuId] = skuPart
		}
	}
	return mapping, nil
}

// getPaginated follows @odata.nextLink until the listing is exhausted,
// appending each page's value array into dest (a *[]T).
func (c *graphClient) getPaginated(startURL, token string, dest interface{}) error {
	pages := []json.RawMessage{}
	currentURL := startURL
	for currentURL != "" {
		req, err := http.NewRequest(http.MethodGet, currentURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("graph request error: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("graph request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var payload struct {
			Value    json.RawMessage `json:"value"`
			NextLink string          `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("graph response was not valid JSON: %w", err)
		}
		if len(payload.Value) > 0 {
			pages = append(pages, payload.Value)
		}
		currentURL = payload.NextLink
	}

	merged := []json.RawMessage{}
	for _, page := range pages {
		var items []json.RawMessage
		if err := json.Unmarshal(page, &items); err != nil {
			return err
		}
		merged = append(merged, items...)
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

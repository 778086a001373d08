package tasks

import (
	"fmt"
	"strings"
)

// Step templates. Each renders one numbered stage of a flow's instructions;
// builders concatenate them into a complete task prompt. Sensitive values
// stay as {placeholder} tokens that the agent resolves only at dispatch.

const stepLogin = `
STEP %d: Login
- Go to %s
- Wait for the login page to fully load
- Enter {email} in the email input field
- Enter {password} in the password input field
- Click the "Login" button to submit the form
- Wait for redirect to campaign page
CHECKPOINT: URL should change to contain "/campaign" after successful login
`

const stepSwitchProduct = `
STEP %d: Switch Product
- Click the product dropdown/selector in the top-left corner of the page
- From the dropdown list, select the test product
- Wait for the page to refresh with the new product context
CHECKPOINT: The product selector should now display the test product name
`

const stepNavigateToAudience = `
STEP %d: Navigate to Audience
- Click "Audience" in the left sidebar menu
- Wait for the Audience page to load
CHECKPOINT: URL should contain "/audience"
`

const stepCreateCampaignForm = `
STEP %d: Create Campaign
- Click the "+ Create Campaign" button
- Wait for the campaign creation form/wizard to load
CHECKPOINT: Campaign creation form should be visible with input fields
`

const stepFillCampaignDetails = `
STEP %d: Fill Campaign Details
- Find the Campaign Name input field and type: "%s"
- For Target Event: click the dropdown to open it, then click on "%s" option in the list
- For Ad Format: click the dropdown to open it, then click on "%s" option in the list
- For Location Targeting (IMPORTANT - do this slowly):
  1. Click the Location dropdown to open it
  2. Wait for the dropdown list to fully appear
  3. Click on "Aruba" option in the list
  4. Wait and verify "Aruba" shows a checkmark or is highlighted as selected
  5. Only after confirming selection, click outside the dropdown to close it
- Find Target Bid input field and type: "%s"
- Find Budget input field and type: "%s"
- For Schedule section:
  - Leave Start Date as default (today)
  - Click the End Date field to open calendar picker
  - In the calendar, click on tomorrow's date (the day after today)
- Click "Next" button to proceed to asset upload step
CHECKPOINT: All fields should be filled and Next button should be clickable
`

const stepUploadAssetsPush = `
STEP %d: Upload Assets and Fill Details
Select assets for Push ad format from library:
1. Click "Add from Library" button
2. In the library popup, click on "Push Ad Set1" to select it
3. Click "Add" button to confirm
CHECKPOINT: Images should be selected and displayed

After images are loaded, fill in the ad details:
- Find the Title input field and type: "Test Push Ad Title"
- Find the Description input field and type: "Test push notification message"
- Leave Destination URL as default (do not modify it)
CHECKPOINT: Title and Description fields should be filled

- After all details are filled, click "Next" button to proceed to review step
CHECKPOINT: Should advance to review/summary page
`

const stepUploadAssetsPop = `
STEP %d: Upload Assets
Pop ad format does not require image uploads.
CHECKPOINT: Proceed directly, no upload areas should be required
- Click "Next" button to proceed to review step
CHECKPOINT: Should advance to review/summary page
`

const stepUploadAssetsDisplay = `
STEP %d: Upload Assets
Select assets for Display ad format from library:
1. Click "Add from Library" button
2. In the library popup, click on the first available image to select it
3. Click "Add" button to confirm
CHECKPOINT: Image should be selected and displayed

After image is loaded:
- Leave Destination URL as default (do not modify it)
- Click "Next" button to proceed to review step
CHECKPOINT: Should advance to review/summary page
`

const stepUploadAssetsNative = `
STEP %d: Upload Assets and Fill Details
Select assets for Native ad format from library:
1. Click "Add from Library" button
2. In the library popup, click on the first available image to select it
3. Click "Add" button to confirm
CHECKPOINT: Image should be selected and displayed

After image is loaded, fill in the ad details:
- Find the Title input field and type: "Test Native Ad Title"
- Find the Description input field and type: "Test native ad description text"
- Leave Destination URL as default (do not modify it)
CHECKPOINT: Title and Description fields should be filled

- After all details are filled, click "Next" button to proceed to review step
CHECKPOINT: Should advance to review/summary page
`

const stepReviewAndPublish = `
STEP %d: Review and Publish
- Review the campaign summary showing all entered details
- Verify campaign name "%s" is displayed correctly
- Click "Publish" or "Create Campaign" or "Submit" button to finalize
- Wait for success confirmation or redirect
CHECKPOINT: Should see success message or be redirected to campaign list
`

const stepVerifyCampaignList = `
STEP %d: Verify Campaign Created
- Navigate to campaign list if not already there (click Campaign in sidebar if needed)
- Look at the campaign list table
- Read and list ALL campaign names visible in the first page of the table

IMPORTANT: You must report the campaign names you see in this exact format:
CAMPAIGN_LIST_START
[list each campaign name on a separate line]
CAMPAIGN_LIST_END
`

const stepCreateAudienceForm = `
STEP %d: Create New Audience
- Click the "+ Create Audience" button
- Wait for the New Segment form to load
CHECKPOINT: New Segment form should be visible with Name field
`

const stepFillAudienceDetails = `
STEP %d: Fill Audience Details
- Find the Name input field and type: "%s"
- In Audience Segments section:
  1. Click the checkbox before "Ad Impression" (one click only)
  2. Wait for "Recency" section to expand below
  3. Click "Last 3 Days" in the Recency dropdown
  4. Click the "Run" button
CHECKPOINT: Name filled and Run clicked
`

const stepCreateAudienceSubmit = `
STEP %d: Create Audience Segment
- Click the "Create Audience Segment" button at the bottom right
- Wait for success confirmation or redirect
CHECKPOINT: Should see success message or be redirected to audience list
`

const stepVerifyAudienceList = `
STEP %d: Verify Audience Created
- Navigate to audience list if not already there
- Look at the audience list table
- Read and list ALL audience names visible in the first page of the table

IMPORTANT: You must report the audience names you see in this exact format:
AUDIENCE_LIST_START
[list each audience name on a separate line]
AUDIENCE_LIST_END
`

const stepNavigateToCreatives = `
STEP %d: Navigate to Creatives and Count
- Click "Creatives" in the left sidebar menu
- Wait for the Creatives page to load
- Count the total number of creative items currently in the list/grid
- Remember this count as BEFORE_COUNT
CHECKPOINT: URL should contain "/creatives", note the current count
`

const stepCreateCreativeStart = `
STEP %d: Start Add New Creative
- Click the "+ Add New Creative(s)" button
- Wait for the "Upload Creative(s)" page to load
CHECKPOINT: "Choose ad format" window should appear
`

const stepChooseAdFormat = `
STEP %d: Choose Ad Format
- In the "Choose ad format" window, click on "%s"
- Click the "Next" button at bottom right
CHECKPOINT: Should proceed to upload area
`

const stepUploadCreativePush = `
STEP %d: Upload Push Creative Images
IMPORTANT: Upload ONLY ONE set of images. Do NOT repeat or upload multiple times!

- Find the 192x192 Icon upload area and use the upload action to upload: %s
- Find the 492x328 Main Image upload area and use the upload action to upload: %s
- Wait for both images to finish uploading
- After both uploads complete, click the "upload" button outside the upload areas (secondary confirmation)
- Wait for upload confirmation
- Click the "Add" button at bottom right

WARNING: After clicking "Add", do NOT upload again. One upload is sufficient.
CHECKPOINT: Creative should be added successfully
`

const stepUploadCreativeDisplay = `
STEP %d: Upload Display Creative Image
IMPORTANT: Upload ONLY ONE image. Do NOT repeat or upload multiple times!

- Find the 250x250 Main Image upload area and use the upload action to upload: %s
- Wait for image to finish uploading
- Click the "Add" button at bottom right

WARNING: After clicking "Add", do NOT upload again. One upload is sufficient.
CHECKPOINT: Creative should be added successfully
`

const stepUploadCreativeNative = `
STEP %d: Upload Native Creative Image
IMPORTANT: Upload ONLY ONE image. Do NOT repeat or upload multiple times!

- Find the 492x328 Main Image upload area and use the upload action to upload: %s
- Wait for image to finish uploading
- Click the "Add" button at bottom right

WARNING: After clicking "Add", do NOT upload again. One upload is sufficient.
CHECKPOINT: Creative should be added successfully
`

const stepVerifyCreativeUpload = `
STEP %d: Verify Upload Success
- After clicking "Add", wait for redirect back to creatives list
- Count the total number of creative items now in the list/grid (AFTER_COUNT)
- Compare with BEFORE_COUNT from earlier

IMPORTANT: Report the counts in this exact format:
CREATIVE_COUNT_BEFORE: [number]
CREATIVE_COUNT_AFTER: [number]
`

const stepDeleteMultipleCreatives = `
STEP %d: Delete Multiple Creatives
You need to delete these creatives one by one. For each creative:
1. Find the creative with EXACT name in the "Creative Name" column
2. Click the trash/delete icon on the far right of that row
3. In the "Confirm Delete" dialog, click "Confirm"
4. Wait for the list to refresh before deleting the next one

IMPORTANT: Match names EXACTLY - do not delete items with similar names!

Creatives to delete (in order):
%s

Delete each one carefully, waiting for confirmation before proceeding to the next.
CHECKPOINT: All listed creatives should be deleted
`

const stepVerifyCreativesDeleted = `
STEP %d: Verify All Deletions
- After all deletions complete, count the total number of creative items now in the list/grid (AFTER_COUNT)
- Compare with BEFORE_COUNT from earlier

IMPORTANT: Report the counts in this exact format:
CREATIVE_COUNT_BEFORE: [number]
CREATIVE_COUNT_AFTER: [number]
`

const promptLogin = `
STEP 1: Login
- Go to %s
- Wait for the login page to fully load
- Enter {email} in the email input field
- Enter {password} in the password input field
- Click the "Login" button to submit the form
- Wait for the page to redirect after login

STEP 2: Report
- Report the current page URL and any visible user or dashboard content

IMPORTANT: Report the outcome in this exact format:
LOGIN_SUCCESS: [true or false]
When finished, use the "done" action with that report as the text.
`

const promptAnalytics = `
STEP 1: Login
- Go to %s
- Wait for the login page to fully load
- Enter {email} in the email input field
- Enter {password} in the password input field
- Click the "Login" button to submit the form
- Wait for the page to redirect after login

STEP 2: Open Analytics
- Navigate to %s
- Wait for the page to fully load

STEP 3: Report
- Describe the page content: the title, the main navigation elements, and
  any charts, metrics or data tables visible

IMPORTANT: Report the outcome in this exact format:
ANALYTICS_SUCCESS: [true or false]
Set it to true only if the page shows analytics content such as charts,
metrics or data tables.
When finished, use the "done" action with that report as the text.
`

// Registration runs as one flow; the agent calls the registered
// get_verification_code action when the platform asks for the emailed code.
const promptRegistration = `
Complete the full registration process on the AdWave platform.

STEP 1: Navigate to Sign Up Page
- Go to %s
- Click the "Sign Up" link/button
- Wait for the registration form to appear

STEP 2: Enter Email
- Enter email: %s
- Click "Next" button
- Wait for verification code page

STEP 3: Get and Enter Verification Code
- Use the "get_verification_code" action to retrieve the code from email
- Enter the verification code in the input field
- Click "Confirm" button (NOT "Resend"!)

STEP 4: Set Password
- Enter password: {password}
- Enter confirm password: {password}
- Click "Next" button

STEP 5: Fill Profile Information
Fill text fields:
- Full Name: Test
- Last Name: User
- Company Legal Name: Test Company LLC
- Company Business Address Line 1: 123 Test Street
- Company Business Address Line 2: Suite 100

For dropdown fields (CLICK to open, then CLICK an option):
- Country of Registration: Click the dropdown, then click "Aruba" from the list
- Industry: Click the dropdown, then click "Advertising and Marketing" from the list

CRITICAL: CLICK "NEXT" BUTTON ONLY! NEVER CLICK "BACK"!

STEP 6: Complete Registration
- Look for "It is all set!" message
- Click "Let's Start Your Journey" button

STEP 7: Login with New Account
- Enter email: %s
- Enter password: {password}
- Click "Login" button (NOT "Sign up"!)

SUCCESS: When you see the welcome page with "Link your first Product", use the
"done" action with a report in this exact format:
REGISTRATION_EMAIL: %s
REGISTRATION_SUCCESS: [true or false]
LOGIN_SUCCESS: [true or false]
`

func buildCampaignPrompt(loginURL, name, targetEvent, adFormat, targetBid, budget string) (string, error) {
	var upload string
	switch adFormat {
	case "Push":
		upload = stepUploadAssetsPush
	case "Pop":
		upload = stepUploadAssetsPop
	case "Display":
		upload = stepUploadAssetsDisplay
	case "Native":
		upload = stepUploadAssetsNative
	default:
		return "", fmt.Errorf("unknown campaign ad format: %q", adFormat)
	}
	return fmt.Sprintf(stepLogin, 1, loginURL) +
		fmt.Sprintf(stepSwitchProduct, 2) +
		fmt.Sprintf(stepCreateCampaignForm, 3) +
		fmt.Sprintf(stepFillCampaignDetails, 4, name, targetEvent, adFormat, targetBid, budget) +
		fmt.Sprintf(upload, 5) +
		fmt.Sprintf(stepReviewAndPublish, 6, name) +
		fmt.Sprintf(stepVerifyCampaignList, 7), nil
}

func buildAudiencePrompt(loginURL, name string) string {
	return fmt.Sprintf(stepLogin, 1, loginURL) +
		fmt.Sprintf(stepNavigateToAudience, 2) +
		fmt.Sprintf(stepCreateAudienceForm, 3) +
		fmt.Sprintf(stepFillAudienceDetails, 4, name) +
		fmt.Sprintf(stepCreateAudienceSubmit, 5) +
		fmt.Sprintf(stepVerifyAudienceList, 6)
}

func buildCreativePrompt(loginURL, adFormat, iconPath, mainPath, imagePath string) (string, error) {
	var upload string
	switch adFormat {
	case "Push":
		upload = fmt.Sprintf(stepUploadCreativePush, 5, iconPath, mainPath)
	case "Display":
		upload = fmt.Sprintf(stepUploadCreativeDisplay, 5, imagePath)
	case "Native":
		upload = fmt.Sprintf(stepUploadCreativeNative, 5, imagePath)
	default:
		return "", fmt.Errorf("unknown creative ad format: %q", adFormat)
	}
	return fmt.Sprintf(stepLogin, 1, loginURL) +
		fmt.Sprintf(stepNavigateToCreatives, 2) +
		fmt.Sprintf(stepCreateCreativeStart, 3) +
		fmt.Sprintf(stepChooseAdFormat, 4, adFormat) +
		upload +
		fmt.Sprintf(stepVerifyCreativeUpload, 6), nil
}

func buildDeletePrompt(loginURL string, creativeNames []string) string {
	list := make([]string, len(creativeNames))
	for i, name := range creativeNames {
		list[i] = "  - " + name
	}
	return fmt.Sprintf(stepLogin, 1, loginURL) +
		fmt.Sprintf(stepNavigateToCreatives, 2) +
		fmt.Sprintf(stepDeleteMultipleCreatives, 3, strings.Join(list, "\n")) +
		fmt.Sprintf(stepVerifyCreativesDeleted, 4)
}

package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/medlab/diagnosis-backend/internal/models"
)

func (env *testEnv) createPatient(t *testing.T, access string) models.Patient {
	body := `{"first_name":"John","last_name":"Doe","age":"42","gender":"M","contact_number":"555-0100","address":"12 Main St"}`
	rec := env.request(t, http.MethodPost, "/v1/patients", body, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var patient models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patient))
	return patient
}

func (env *testEnv) createLabTest(t *testing.T, access, name string, cost float64) models.LabTest {
	body := fmt.Sprintf(`{"name":%q,"cost":%v,"sample_required":"blood"}`, name, cost)
	rec := env.request(t, http.MethodPost, "/v1/tests", body, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var test models.LabTest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &test))
	return test
}

func (env *testEnv) createOrder(t *testing.T, access string, patientID uuid.UUID, testIDs []uuid.UUID, discount float64) models.Order {
	ids, err := json.Marshal(testIDs)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"patient_id":%q,"test_ids":%s,"discount_amount":%v}`, patientID, ids, discount)
	rec := env.request(t, http.MethodPost, "/v1/orders", body, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	return order
}

func TestOrderWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "assistant1", "secret123")

	patient := env.createPatient(t, access)
	cbc := env.createLabTest(t, access, "CBC", 300)
	lipid := env.createLabTest(t, access, "Lipid Profile", 700)

	order := env.createOrder(t, access, patient.ID, []uuid.UUID{cbc.ID, lipid.ID}, 100)
	require.Equal(t, models.OrderPending, order.Status)
	require.Equal(t, 1000.0, order.TotalAmount)
	require.Len(t, order.Tests, 2)

	// The bill is created with the order; the discount comes off the total.
	rec := env.request(t, http.MethodGet, "/v1/orders/"+order.ID.String()+"/billing", "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	var billing models.Billing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &billing))
	require.Equal(t, 1000.0, billing.TotalAmount)
	require.Equal(t, 900.0, billing.NetAmount)
	require.Equal(t, 900.0, billing.DueAmount)
	require.Equal(t, models.PaymentUnpaid, billing.PaymentStatus)

	// Collect the sample for the first test, then file its result.
	orderTest := order.Tests[0]
	rec = env.request(t, http.MethodPost, "/v1/order-tests/"+orderTest.ID.String()+"/collect", "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	var collected models.OrderTest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &collected))
	require.NotNil(t, collected.SampleCollectedAt)

	reportBody := fmt.Sprintf(`{"order_test_id":%q,"result":{"hemoglobin":13.5},"comments":"within range"}`, orderTest.ID)
	rec = env.request(t, http.MethodPost, "/v1/reports", reportBody, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Filing the report marks the order test completed.
	rec = env.request(t, http.MethodGet, "/v1/orders/"+order.ID.String(), "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	var reloaded models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reloaded))
	for _, ot := range reloaded.Tests {
		if ot.ID == orderTest.ID {
			require.Equal(t, models.TestCompleted, ot.Status)
		}
	}

	rec = env.request(t, http.MethodGet, "/v1/orders/"+order.ID.String()+"/reports", "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	var reports []models.TestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	require.Equal(t, orderTest.ID, reports[0].OrderTestID)
}

func TestOrderRejectsUnknownTest(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "assistant1", "secret123")

	patient := env.createPatient(t, access)
	body := fmt.Sprintf(`{"patient_id":%q,"test_ids":[%q]}`, patient.ID, uuid.New())
	rec := env.request(t, http.MethodPost, "/v1/orders", body, access)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "assistant1", "secret123")

	patient := env.createPatient(t, access)
	test := env.createLabTest(t, access, "CBC", 500)
	order := env.createOrder(t, access, patient.ID, []uuid.UUID{test.ID}, 0)

	rec := env.request(t, http.MethodGet, "/v1/orders/"+order.ID.String()+"/billing", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	var billing models.Billing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &billing))

	payPath := "/v1/billings/" + billing.ID.String() + "/pay"

	rec = env.request(t, http.MethodPost, payPath, `{"amount":600,"method":"CASH"}`, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, payPath, `{"amount":200,"method":"CASH"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &billing))
	require.Equal(t, models.PaymentPartial, billing.PaymentStatus)
	require.Equal(t, 300.0, billing.DueAmount)

	rec = env.request(t, http.MethodPost, payPath, `{"amount":300,"method":"UPI"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &billing))
	require.Equal(t, models.PaymentPaid, billing.PaymentStatus)
	require.Equal(t, 0.0, billing.DueAmount)
	require.NotNil(t, billing.PaidAt)
}

func TestDeleteOrderIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	env.signup(t, "root_admin", "secret123", models.RoleAdmin)
	assistantAccess, _ := env.login(t, "assistant1", "secret123")
	adminAccess, _ := env.login(t, "root_admin", "secret123")

	patient := env.createPatient(t, assistantAccess)
	test := env.createLabTest(t, assistantAccess, "CBC", 500)
	order := env.createOrder(t, assistantAccess, patient.ID, []uuid.UUID{test.ID}, 0)

	rec := env.request(t, http.MethodDelete, "/v1/orders/"+order.ID.String(), "", assistantAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodDelete, "/v1/orders/"+order.ID.String(), "", adminAccess)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The order and its billing are gone together.
	rec = env.request(t, http.MethodGet, "/v1/orders/"+order.ID.String(), "", adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.request(t, http.MethodGet, "/v1/orders/"+order.ID.String()+"/billing", "", adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchWithoutIndexBackend(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "assistant1", "secret123")

	// No elasticsearch client is wired; the route must refuse, not panic.
	rec := env.request(t, http.MethodGet, "/v1/patients/search?q=smith", "", access)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPatientUpdateMergesFields(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "assistant1", "secret123")

	patient := env.createPatient(t, access)

	rec := env.request(t, http.MethodPatch, "/v1/patients/"+patient.ID.String(),
		`{"contact_number":"555-0199"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "555-0199", updated.ContactNumber)
	require.Equal(t, "John", updated.FirstName)
}

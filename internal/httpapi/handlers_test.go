package httpapi

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"testing"

	"github.com/plcworks/go-plclight-server/internal/engine"
	"github.com/plcworks/go-plclight-server/internal/plc"
)

func ccoURL(ts string, parts ...string) string {
	return fmt.Sprintf("%s/api/lighting/%s/%s", ts, testCCO, strings.Join(parts, "/"))
}

func TestListCCO(t *testing.T) {
	ctrl := &stubController{addr: testCCO}
	ts := newTestServer(t, ctrl)

	resp := doReq(t, http.MethodGet, ts.URL+"/api/lighting/list_cco", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	readJSON(t, resp, &body)
	if body["address"] != string(testCCO) {
		t.Fatalf("address = %q, want %q", body["address"], testCCO)
	}
}

func TestControlModeRoutes(t *testing.T) {
	ctrl := &stubController{mode: engine.ControlMode{Analog: true, Button: true}}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "control_mode")

	resp := doReq(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var mode engine.ControlMode
	readJSON(t, resp, &mode)
	if mode != ctrl.mode {
		t.Fatalf("mode = %+v, want %+v", mode, ctrl.mode)
	}
	if ctrl.lastCCO() != testCCO {
		t.Fatalf("cco = %q, want %q", ctrl.lastCCO(), testCCO)
	}

	resp = doReq(t, http.MethodPut, url, strings.NewReader(`{"analog":false,"button":true,"modbus":true,"bacnet":false,"debug":false}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	want := engine.ControlMode{Button: true, Modbus: true}
	if got := ctrl.lastMode(); got != want {
		t.Fatalf("mode = %+v, want %+v", got, want)
	}
}

func TestResetControlMode(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)

	resp := doReq(t, http.MethodPost, ccoURL(ts.URL, "reset_control_mode"), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if !ctrl.called("ResetControlMode") {
		t.Fatal("ResetControlMode not called")
	}
}

func TestDimSingleRoute(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "dim_single", string(testSTA))

	resp := doReq(t, http.MethodPut, url, strings.NewReader(`{"dimming_levels":[100,200,300]}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastDimming(); got != (engine.Dimming{100, 200, 300}) {
		t.Fatalf("dimming = %v", got)
	}
	if ctrl.lastSTA() != testSTA {
		t.Fatalf("sta = %q, want %q", ctrl.lastSTA(), testSTA)
	}

	// The level triple is mandatory here.
	resp = doReq(t, http.MethodPut, url, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without body", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPut, url, strings.NewReader(`{"dimming_levels":[100,200]}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for short triple", resp.StatusCode)
	}
}

func TestDisableDimSingleDefault(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "disable_dim_single", string(testSTA))

	resp := doReq(t, http.MethodPost, url, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastDimming(); got != (engine.Dimming{}) {
		t.Fatalf("dimming = %v, want zero triple", got)
	}

	resp = doReq(t, http.MethodPost, url, strings.NewReader(`{"dimming_levels":[5,5,5]}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastDimming(); got != (engine.Dimming{5, 5, 5}) {
		t.Fatalf("dimming = %v, want {5 5 5}", got)
	}
}

func TestBroadcastDimmingRoutes(t *testing.T) {
	ctrl := &stubController{dimming: engine.Dimming{10, 20, 30}}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "dim_broadcast")

	resp := doReq(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Levels []int `json:"dimming_levels"`
	}
	readJSON(t, resp, &body)
	if len(body.Levels) != 3 || body.Levels[0] != 10 || body.Levels[2] != 30 {
		t.Fatalf("dimming_levels = %v", body.Levels)
	}

	resp = doReq(t, http.MethodPut, url, strings.NewReader(`{"dimming_levels":[999,0,500]}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastDimming(); got != (engine.Dimming{999, 0, 500}) {
		t.Fatalf("dimming = %v", got)
	}
}

func TestDimGroupRoute(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "dim_group")

	resp := doReq(t, http.MethodPut, url+"?group=3", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastInt(); got != 3 {
		t.Fatalf("group = %d, want 3", got)
	}
	if got := ctrl.lastDimming(); got != defaultGroupDimming {
		t.Fatalf("dimming = %v, want default %v", got, defaultGroupDimming)
	}

	resp = doReq(t, http.MethodPut, url+"?group=8", strings.NewReader(`{"dimming_levels":[700,800,900]}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastDimming(); got != (engine.Dimming{700, 800, 900}) {
		t.Fatalf("dimming = %v", got)
	}

	resp = doReq(t, http.MethodPut, url, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without group", resp.StatusCode)
	}
}

func TestDisableDimGroupRoute(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)
	url := fmt.Sprintf("%s/api/lighting/disable_group_dimming/%s?group=2", ts.URL, testCCO)

	resp := doReq(t, http.MethodPost, url, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastInt(); got != 2 {
		t.Fatalf("group = %d, want 2", got)
	}
	if !ctrl.called("DisableDimGroup") {
		t.Fatal("DisableDimGroup not called")
	}
}

func TestSTAGroupRoutes(t *testing.T) {
	ctrl := &stubController{group: 5}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "group", string(testSTA))

	resp := doReq(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]int
	readJSON(t, resp, &body)
	if body["group_id"] != 5 {
		t.Fatalf("group_id = %d, want 5", body["group_id"])
	}

	resp = doReq(t, http.MethodPut, url+"?group=6", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastInt(); got != 6 {
		t.Fatalf("group = %d, want 6", got)
	}
	if ctrl.lastSTA() != testSTA {
		t.Fatalf("sta = %q, want %q", ctrl.lastSTA(), testSTA)
	}
}

func TestAllSTAGroupsShape(t *testing.T) {
	ctrl := &stubController{groups: []engine.GroupAssignment{
		{STA: "046DD5BC0001", Group: 1},
		{STA: "046DD5BC0002", Group: 3},
	}}
	ts := newTestServer(t, ctrl)

	resp := doReq(t, http.MethodGet, ccoURL(ts.URL, "groups"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		STAs   []string `json:"sta_uids"`
		Groups []int    `json:"group_ids"`
	}
	readJSON(t, resp, &body)
	if len(body.STAs) != 2 || body.STAs[1] != "046DD5BC0002" {
		t.Fatalf("sta_uids = %v", body.STAs)
	}
	if len(body.Groups) != 2 || body.Groups[1] != 3 {
		t.Fatalf("group_ids = %v", body.Groups)
	}
}

func TestAllSTAGroupsEmpty(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)

	resp := doReq(t, http.MethodGet, ccoURL(ts.URL, "groups"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		STAs   []string `json:"sta_uids"`
		Groups []int    `json:"group_ids"`
	}
	readJSON(t, resp, &body)
	// Empty arrays, not nulls: clients index into these unconditionally.
	if body.STAs == nil || body.Groups == nil {
		t.Fatalf("sta_uids = %v, group_ids = %v, want empty arrays", body.STAs, body.Groups)
	}
}

func TestScalarSettingRoutes(t *testing.T) {
	cases := []struct {
		path    string
		field   string
		getCall string
		setCall string
	}{
		{"tx_power", "txpower", "TxPower", "SetTxPower"},
		{"access_time", "access_time", "AccessTime", "SetAccessTime"},
		{"band", "band", "Band", "SetBand"},
		{"dim_channel", "channel_count", "DimChannel", "SetDimChannel"},
		{"modbus_rtu_node_address", "address", "ModbusAddr", "SetModbusAddr"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			ctrl := &stubController{scalar: 7}
			ts := newTestServer(t, ctrl)
			url := ccoURL(ts.URL, tc.path)

			resp := doReq(t, http.MethodGet, url, nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			var body map[string]int
			readJSON(t, resp, &body)
			if body[tc.field] != 7 {
				t.Fatalf("%s = %d, want 7", tc.field, body[tc.field])
			}
			if !ctrl.called(tc.getCall) {
				t.Fatalf("%s not called", tc.getCall)
			}

			resp = doReq(t, http.MethodPut, url+"?"+tc.field+"=9", nil)
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("status = %d, want 204", resp.StatusCode)
			}
			if got := ctrl.lastInt(); got != 9 {
				t.Fatalf("value = %d, want 9", got)
			}
			if !ctrl.called(tc.setCall) {
				t.Fatalf("%s not called", tc.setCall)
			}

			resp = doReq(t, http.MethodPut, url, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 without %s", resp.StatusCode, tc.field)
			}
		})
	}
}

func TestStartupControlRoutes(t *testing.T) {
	ctrl := &stubController{startup: engine.StartupControl{Enabled: true, DefaultDimming: 80}}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "startup_control")

	resp := doReq(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var sc engine.StartupControl
	readJSON(t, resp, &sc)
	if sc != ctrl.startup {
		t.Fatalf("startup = %+v, want %+v", sc, ctrl.startup)
	}

	resp = doReq(t, http.MethodPut, url, strings.NewReader(`{"is_enabled":false,"default_dimming":25}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	want := engine.StartupControl{DefaultDimming: 25}
	if got := ctrl.lastStartup(); got != want {
		t.Fatalf("startup = %+v, want %+v", got, want)
	}
}

func TestIPConfigRoutes(t *testing.T) {
	cfg := engine.IPConfig{
		Address: netip.MustParseAddr("192.0.0.128"),
		Netmask: netip.MustParseAddr("255.255.255.128"),
		Gateway: netip.MustParseAddr("192.168.0.1"),
	}
	ctrl := &stubController{ipcfg: cfg}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "ip_address")

	resp := doReq(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got engine.IPConfig
	readJSON(t, resp, &got)
	if got != cfg {
		t.Fatalf("config = %+v, want %+v", got, cfg)
	}

	resp = doReq(t, http.MethodPut, url, strings.NewReader(
		`{"dynamic":false,"address":"10.0.0.2","netmask":"255.255.255.0","gateway":"10.0.0.1"}`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastIP(); got.Address != netip.MustParseAddr("10.0.0.2") {
		t.Fatalf("address = %v, want 10.0.0.2", got.Address)
	}

	resp = doReq(t, http.MethodPut, url, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without body", resp.StatusCode)
	}
}

func TestWhitelistRoutes(t *testing.T) {
	ctrl := &stubController{whitelist: []plc.Address{"046DD5BC0001", "046DD5BC0002"}}
	ts := newTestServer(t, ctrl)
	url := ccoURL(ts.URL, "whitelist")

	resp := doReq(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string][]string
	readJSON(t, resp, &body)
	if len(body["whitelist"]) != 2 || body["whitelist"][0] != "046DD5BC0001" {
		t.Fatalf("whitelist = %v", body["whitelist"])
	}

	// The write body is the bare address array.
	resp = doReq(t, http.MethodPost, url, strings.NewReader(`["046DD5BC0003","046DD5BC0004"]`))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := ctrl.lastSTAs(); len(got) != 2 || got[1] != "046DD5BC0004" {
		t.Fatalf("stas = %v", got)
	}

	resp = doReq(t, http.MethodPost, url, strings.NewReader(`{"whitelist":[]}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for non-array body", resp.StatusCode)
	}

	resp = doReq(t, http.MethodDelete, url, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if !ctrl.called("ClearWhitelist") {
		t.Fatal("ClearWhitelist not called")
	}
}

func TestStatusRoute(t *testing.T) {
	want := engine.STAStatus{
		STA:      testSTA,
		Firmware: "V1.2.3",
		Dimming:  engine.Dimming{55, 8, 48},
		Mode:     "single enable",
		MeterRaw: "55AABB",
	}
	ctrl := &stubController{status: want}
	ts := newTestServer(t, ctrl)

	resp := doReq(t, http.MethodGet, ccoURL(ts.URL, "status", string(testSTA)), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got engine.STAStatus
	readJSON(t, resp, &got)
	if got != want {
		t.Fatalf("status = %+v, want %+v", got, want)
	}
	if ctrl.lastSTA() != testSTA {
		t.Fatalf("sta = %q, want %q", ctrl.lastSTA(), testSTA)
	}
}

func TestRebootRoute(t *testing.T) {
	ctrl := &stubController{}
	ts := newTestServer(t, ctrl)

	resp := doReq(t, http.MethodPost, ccoURL(ts.URL, "reboot"), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if !ctrl.called("Reboot") {
		t.Fatal("Reboot not called")
	}
}

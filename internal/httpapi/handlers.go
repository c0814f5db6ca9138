package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plcworks/go-plclight-server/internal/engine"
	"github.com/plcworks/go-plclight-server/internal/plc"
)

func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /api/lighting/list_cco", s.handleListCCO)

	s.handle(mux, "GET /api/lighting/{cco}/control_mode", s.handleGetControlMode)
	s.handle(mux, "PUT /api/lighting/{cco}/control_mode", s.handleSetControlMode)
	s.handle(mux, "POST /api/lighting/{cco}/reset_control_mode", s.handleResetControlMode)

	s.handle(mux, "PUT /api/lighting/{cco}/dim_single/{sta}", s.handleDimSingle)
	s.handle(mux, "POST /api/lighting/{cco}/disable_dim_single/{sta}", s.handleDisableDimSingle)
	s.handle(mux, "GET /api/lighting/{cco}/dim_broadcast", s.handleGetDimBroadcast)
	s.handle(mux, "PUT /api/lighting/{cco}/dim_broadcast", s.handleDimBroadcast)
	s.handle(mux, "PUT /api/lighting/{cco}/dim_group", s.handleDimGroup)
	// Path shape is historical: the transmitter address trails the action.
	s.handle(mux, "POST /api/lighting/disable_group_dimming/{cco}", s.handleDisableDimGroup)

	s.handle(mux, "GET /api/lighting/{cco}/group/{sta}", s.handleGetSTAGroup)
	s.handle(mux, "PUT /api/lighting/{cco}/group/{sta}", s.handleSetSTAGroup)
	s.handle(mux, "GET /api/lighting/{cco}/groups", s.handleAllSTAGroups)

	s.handle(mux, "GET /api/lighting/{cco}/tx_power", s.handleGetTxPower)
	s.handle(mux, "PUT /api/lighting/{cco}/tx_power", s.handleSetTxPower)
	s.handle(mux, "GET /api/lighting/{cco}/access_time", s.handleGetAccessTime)
	s.handle(mux, "PUT /api/lighting/{cco}/access_time", s.handleSetAccessTime)
	s.handle(mux, "GET /api/lighting/{cco}/band", s.handleGetBand)
	s.handle(mux, "PUT /api/lighting/{cco}/band", s.handleSetBand)
	s.handle(mux, "GET /api/lighting/{cco}/dim_channel", s.handleGetDimChannel)
	s.handle(mux, "PUT /api/lighting/{cco}/dim_channel", s.handleSetDimChannel)
	s.handle(mux, "GET /api/lighting/{cco}/startup_control", s.handleGetStartupControl)
	s.handle(mux, "PUT /api/lighting/{cco}/startup_control", s.handleSetStartupControl)
	s.handle(mux, "GET /api/lighting/{cco}/modbus_rtu_node_address", s.handleGetModbusAddr)
	s.handle(mux, "PUT /api/lighting/{cco}/modbus_rtu_node_address", s.handleSetModbusAddr)
	s.handle(mux, "GET /api/lighting/{cco}/ip_address", s.handleGetIPConfig)
	s.handle(mux, "PUT /api/lighting/{cco}/ip_address", s.handleSetIPConfig)

	s.handle(mux, "GET /api/lighting/{cco}/whitelist", s.handleGetWhitelist)
	s.handle(mux, "POST /api/lighting/{cco}/whitelist", s.handleSetWhitelist)
	s.handle(mux, "DELETE /api/lighting/{cco}/whitelist", s.handleClearWhitelist)

	s.handle(mux, "POST /api/lighting/{cco}/reboot", s.handleReboot)
	s.handle(mux, "GET /api/lighting/{cco}/status/{sta}", s.handleStatus)

	// The discovery stream bypasses the metrics wrapper: the upgrade needs
	// the raw ResponseWriter for hijacking.
	mux.HandleFunc("GET /api/lighting/{cco}/network_discovery", s.handleDiscovery)
}

// dimmingBody mirrors the wire-facing JSON shape {"dimming_levels":[a,b,c]}.
type dimmingBody struct {
	Levels []int `json:"dimming_levels"`
}

// decodeDimming reads a dimming triple from the request body. When the
// body is absent and fallback is non-nil, the fallback is used instead.
func decodeDimming(r *http.Request, fallback *engine.Dimming) (engine.Dimming, error) {
	var body dimmingBody
	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) && fallback != nil {
		return *fallback, nil
	}
	if err != nil {
		return engine.Dimming{}, fmt.Errorf("%w: dimming body: %v", plc.ErrValidation, err)
	}
	if len(body.Levels) != 3 {
		return engine.Dimming{}, fmt.Errorf("%w: dimming_levels must have 3 entries, got %d", plc.ErrValidation, len(body.Levels))
	}
	return engine.Dimming{body.Levels[0], body.Levels[1], body.Levels[2]}, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", plc.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleListCCO(w http.ResponseWriter, r *http.Request) {
	timeout, err := reqTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	addr, err := s.ctrl.ListTransmitter(timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]plc.Address{"address": addr})
}

func (s *Server) handleGetControlMode(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	mode, err := s.ctrl.ControlMode(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mode)
}

func (s *Server) handleSetControlMode(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var mode engine.ControlMode
	if err := decodeBody(r, &mode); err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.SetControlMode(cco, mode, timeout))
}

func (s *Server) handleResetControlMode(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.ResetControlMode(cco, timeout))
}

func (s *Server) handleDimSingle(w http.ResponseWriter, r *http.Request) {
	cco, sta, err := targetPair(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := decodeDimming(r, nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.DimSingle(cco, sta, d))
}

func (s *Server) handleDisableDimSingle(w http.ResponseWriter, r *http.Request) {
	cco, sta, err := targetPair(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := decodeDimming(r, &engine.Dimming{0, 0, 0})
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.DisableDimSingle(cco, sta, d))
}

func (s *Server) handleGetDimBroadcast(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := s.ctrl.BroadcastDimming(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dimmingBody{Levels: d[:]})
}

func (s *Server) handleDimBroadcast(w http.ResponseWriter, r *http.Request) {
	cco, err := pathCCO(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := decodeDimming(r, nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.SetBroadcastDimming(cco, d))
}

// Group dimming defaults to half brightness on the first two channels, the
// shape installers expect when enabling a group blind.
var defaultGroupDimming = engine.Dimming{50, 50, 0}

func (s *Server) handleDimGroup(w http.ResponseWriter, r *http.Request) {
	cco, err := pathCCO(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	group, err := intQuery(r, "group")
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := decodeDimming(r, &defaultGroupDimming)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.DimGroup(cco, group, d))
}

func (s *Server) handleDisableDimGroup(w http.ResponseWriter, r *http.Request) {
	cco, err := pathCCO(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	group, err := intQuery(r, "group")
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.DisableDimGroup(cco, group))
}

func (s *Server) handleGetSTAGroup(w http.ResponseWriter, r *http.Request) {
	cco, sta, err := targetPair(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	timeout, err := reqTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	group, err := s.ctrl.STAGroup(cco, sta, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"group_id": group})
}

func (s *Server) handleSetSTAGroup(w http.ResponseWriter, r *http.Request) {
	cco, sta, err := targetPair(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	timeout, err := reqTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	group, err := intQuery(r, "group")
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.SetSTAGroup(cco, sta, group, timeout))
}

func (s *Server) handleAllSTAGroups(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	groups, err := s.ctrl.AllSTAGroups(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	stas := make([]plc.Address, 0, len(groups))
	ids := make([]int, 0, len(groups))
	for _, g := range groups {
		stas = append(stas, g.STA)
		ids = append(ids, g.Group)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sta_uids": stas, "group_ids": ids})
}

func (s *Server) handleGetTxPower(w http.ResponseWriter, r *http.Request) {
	getInt(w, r, "txpower", s.ctrl.TxPower)
}

func (s *Server) handleSetTxPower(w http.ResponseWriter, r *http.Request) {
	setInt(w, r, "txpower", s.ctrl.SetTxPower)
}

func (s *Server) handleGetAccessTime(w http.ResponseWriter, r *http.Request) {
	getInt(w, r, "access_time", s.ctrl.AccessTime)
}

func (s *Server) handleSetAccessTime(w http.ResponseWriter, r *http.Request) {
	setInt(w, r, "access_time", s.ctrl.SetAccessTime)
}

func (s *Server) handleGetBand(w http.ResponseWriter, r *http.Request) {
	getInt(w, r, "band", s.ctrl.Band)
}

func (s *Server) handleSetBand(w http.ResponseWriter, r *http.Request) {
	setInt(w, r, "band", s.ctrl.SetBand)
}

func (s *Server) handleGetDimChannel(w http.ResponseWriter, r *http.Request) {
	getInt(w, r, "channel_count", s.ctrl.DimChannel)
}

func (s *Server) handleSetDimChannel(w http.ResponseWriter, r *http.Request) {
	setInt(w, r, "channel_count", s.ctrl.SetDimChannel)
}

func (s *Server) handleGetModbusAddr(w http.ResponseWriter, r *http.Request) {
	getInt(w, r, "address", s.ctrl.ModbusAddr)
}

func (s *Server) handleSetModbusAddr(w http.ResponseWriter, r *http.Request) {
	setInt(w, r, "address", s.ctrl.SetModbusAddr)
}

func (s *Server) handleGetStartupControl(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	sc, err := s.ctrl.StartupControl(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleSetStartupControl(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var sc engine.StartupControl
	if err := decodeBody(r, &sc); err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.SetStartupControl(cco, sc, timeout))
}

func (s *Server) handleGetIPConfig(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	cfg, err := s.ctrl.IPConfigGet(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetIPConfig(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var cfg engine.IPConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.SetIPConfig(cco, cfg, timeout))
}

func (s *Server) handleGetWhitelist(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	list, err := s.ctrl.Whitelist(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]plc.Address{"whitelist": list})
}

func (s *Server) handleSetWhitelist(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var stas []plc.Address
	if err := decodeBody(r, &stas); err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.SetWhitelist(cco, stas, timeout))
}

func (s *Server) handleClearWhitelist(w http.ResponseWriter, r *http.Request) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.ClearWhitelist(cco, timeout))
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	cco, err := pathCCO(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, s.ctrl.Reboot(cco))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cco, sta, err := targetPair(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	timeout, err := reqTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	st, err := s.ctrl.Status(cco, sta, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ccoAndTimeout parses the two parameters every transmitter route shares.
func ccoAndTimeout(r *http.Request) (plc.Address, time.Duration, error) {
	cco, err := pathCCO(r)
	if err != nil {
		return "", 0, err
	}
	timeout, err := reqTimeout(r)
	if err != nil {
		return "", 0, err
	}
	return cco, timeout, nil
}

// targetPair parses the transmitter and adapter addresses of /{cco}/.../{sta}
// routes.
func targetPair(r *http.Request) (cco, sta plc.Address, err error) {
	if cco, err = pathCCO(r); err != nil {
		return "", "", err
	}
	if sta, err = pathSTA(r); err != nil {
		return "", "", err
	}
	return cco, sta, nil
}

// getInt serves the scalar-setting read routes: {"<field>": value}.
func getInt(w http.ResponseWriter, r *http.Request, field string, read func(plc.Address, time.Duration) (int, error)) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	v, err := read(cco, timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{field: v})
}

// setInt serves the scalar-setting write routes; the value is a query
// parameter named like the field.
func setInt(w http.ResponseWriter, r *http.Request, field string, write func(plc.Address, int, time.Duration) error) {
	cco, timeout, err := ccoAndTimeout(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	v, err := intQuery(r, field)
	if err != nil {
		writeErr(w, err)
		return
	}
	finish(w, write(cco, v, timeout))
}

// finish ends a write route: 204 on success, the mapped error otherwise.
func finish(w http.ResponseWriter, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

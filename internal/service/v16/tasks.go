package v16

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// StartHeartbeat 启动心跳任务，重复调用等价于重启
func (s *Service) StartHeartbeat() {
	s.mu.Lock()
	if s.heartbeatStarted {
		s.mu.Unlock()
		// 已在运行时等价于重启
		s.RestartHeartbeat()
		return
	}
	s.heartbeatStarted = true
	s.mu.Unlock()

	s.station.Spawn("heartbeat", func(stop <-chan struct{}) {
		s.heartbeatLoop(stop)
	})
}

// RestartHeartbeat 以当前配置间隔重启心跳，等值写入下幂等
func (s *Service) RestartHeartbeat() {
	select {
	case s.heartbeatRestartCh <- struct{}{}:
	default:
	}
}

// heartbeatLoop 心跳循环，间隔从配置键读取
func (s *Service) heartbeatLoop(stop <-chan struct{}) {
	interval := s.configSeconds(station.KeyHeartbeatInterval, s.ocppCfg.HeartbeatInterval)
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.heartbeatRestartCh:
			newInterval := s.configSeconds(station.KeyHeartbeatInterval, s.ocppCfg.HeartbeatInterval)
			if newInterval != interval {
				interval = newInterval
				s.log.Infof("Heartbeat interval is now %v", interval)
			}
			ticker.Reset(interval)
		case <-ticker.C:
			if err := s.SendHeartbeat(context.Background()); err != nil {
				s.log.Warnf("Heartbeat failed: %v", err)
			}
		}
	}
}

// startMeterValuesTask 启动连接器的周期电表值任务
func (s *Service) startMeterValuesTask(connectorID int) {
	s.mu.Lock()
	if _, running := s.meterTasks[connectorID]; running {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	s.meterTasks[connectorID] = stopCh
	s.mu.Unlock()

	s.station.Spawn(fmt.Sprintf("meter-values-%d", connectorID), func(stationStop <-chan struct{}) {
		s.meterValuesLoop(connectorID, stopCh, stationStop)
	})
}

// stopMeterValuesTask 停止连接器的周期电表值任务
func (s *Service) stopMeterValuesTask(connectorID int) {
	s.mu.Lock()
	stopCh, running := s.meterTasks[connectorID]
	if running {
		delete(s.meterTasks, connectorID)
	}
	s.mu.Unlock()

	if running {
		close(stopCh)
	}
}

// meterValuesLoop 周期采样：寄存器随机游走并上报
func (s *Service) meterValuesLoop(connectorID int, stop <-chan struct{}, stationStop <-chan struct{}) {
	interval := s.configSeconds(station.KeyMeterValueSampleInterval, s.ocppCfg.MeterValueSampleInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-stationStop:
			return
		case <-ticker.C:
			s.sampleAndSend(connectorID)
		}
	}
}

// sampleAndSend 推进能量寄存器并发送采样值
func (s *Service) sampleAndSend(connectorID int) {
	connector := s.station.GetConnector(connectorID)
	if connector == nil || !connector.TransactionStarted {
		return
	}

	// 以7kW为基准功率做随机浮动，换算到采样间隔内的能量增量
	interval := s.configSeconds(station.KeyMeterValueSampleInterval, s.ocppCfg.MeterValueSampleInterval)
	power := s.station.RNG().FloatFluctuation(7000, 20)
	divider := s.station.PowerDivider()
	if s.station.Info().PowerShared && divider > 1 {
		power = power / float64(divider)
	}
	energyWh := int64(power * interval.Seconds() / 3600)

	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		c.EnergyActiveImportRegister += energyWh
		c.TransactionEnergyActiveImportRegister += energyWh
		return nil
	})

	if err := s.sendCurrentMeterValues(context.Background(), connectorID, ocpp16.ReadingContextSamplePeriodic); err != nil {
		s.log.Warnf("Periodic MeterValues failed: %v", err)
	}
}

// runFirmwareUpdateSimulation 固件升级模拟状态机
func (s *Service) runFirmwareUpdateSimulation(ctx context.Context, retrieveDate time.Time) {
	clock := s.station.Clock()

	// retrieveDate之前什么都不做
	if wait := retrieveDate.Sub(clock.Now()); wait > 0 {
		clock.Sleep(wait)
	}

	// 空闲连接器先置为不可用
	for _, connectorID := range s.station.ConnectorIDs() {
		connector := s.station.GetConnector(connectorID)
		if connector == nil || connector.TransactionStarted {
			continue
		}
		if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusUnavailable, ocpp16.ChargePointErrorCodeNoError); err != nil {
			s.log.Warnf("StatusNotification(Unavailable) before firmware download failed: %v", err)
		}
		s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusUnavailable)
	}

	if err := s.SendFirmwareStatusNotification(ctx, ocpp16.FirmwareStatusDownloading); err != nil {
		s.log.Errorf("FirmwareStatusNotification(Downloading) failed: %v", err)
	}

	randomDelay := func() {
		seconds := s.station.RNG().IntBetween(int(s.fwCfg.MinDelay.Seconds()), int(s.fwCfg.MaxDelay.Seconds()))
		clock.Sleep(time.Duration(seconds) * time.Second)
	}

	if s.fwCfg.FailureStatus == string(ocpp16.FirmwareStatusDownloadFailed) {
		randomDelay()
		if err := s.SendFirmwareStatusNotification(ctx, ocpp16.FirmwareStatusDownloadFailed); err != nil {
			s.log.Errorf("FirmwareStatusNotification(DownloadFailed) failed: %v", err)
		}
		return
	}

	randomDelay()
	if err := s.SendFirmwareStatusNotification(ctx, ocpp16.FirmwareStatusDownloaded); err != nil {
		s.log.Errorf("FirmwareStatusNotification(Downloaded) failed: %v", err)
	}

	// 等全部交易结束
	waitedForTransactions := false
	for s.station.ActiveTransactionCount() > 0 {
		waitedForTransactions = true
		clock.Sleep(s.fwCfg.TransactionPollInterval)
	}

	// 确保全部连接器不可用
	for _, connectorID := range s.station.ConnectorIDs() {
		connector := s.station.GetConnector(connectorID)
		if connector == nil || connector.Status16 == ocpp16.ChargePointStatusUnavailable {
			continue
		}
		if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusUnavailable, ocpp16.ChargePointErrorCodeNoError); err != nil {
			s.log.Warnf("StatusNotification(Unavailable) before install failed: %v", err)
		}
		s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusUnavailable)
	}

	if !waitedForTransactions {
		randomDelay()
	}

	if err := s.SendFirmwareStatusNotification(ctx, ocpp16.FirmwareStatusInstalling); err != nil {
		s.log.Errorf("FirmwareStatusNotification(Installing) failed: %v", err)
	}

	if s.fwCfg.FailureStatus == string(ocpp16.FirmwareStatusInstallationFailed) {
		randomDelay()
		if err := s.SendFirmwareStatusNotification(ctx, ocpp16.FirmwareStatusInstallationFailed); err != nil {
			s.log.Errorf("FirmwareStatusNotification(InstallationFailed) failed: %v", err)
		}
		return
	}

	randomDelay()
	if err := s.SendFirmwareStatusNotification(ctx, ocpp16.FirmwareStatusInstalled); err != nil {
		s.log.Errorf("FirmwareStatusNotification(Installed) failed: %v", err)
	}

	if s.fwCfg.ResetOnUpgrade {
		randomDelay()
		s.station.Reset(string(ocpp16.ReasonReboot))
	}
}

// uploadDiagnostics 诊断上传：仅支持ftp://，经FtpClient收集并上传日志
func (s *Service) uploadDiagnostics(ctx context.Context, location string) (*ocpp16.GetDiagnosticsResponse, error) {
	parsed, err := url.Parse(location)
	if err != nil || parsed.Scheme != "ftp" {
		s.log.Warnf("Unsupported diagnostics upload scheme in %q", location)
		if notifyErr := s.SendDiagnosticsStatusNotification(ctx, ocpp16.DiagnosticsStatusUploadFailed); notifyErr != nil {
			s.log.Errorf("DiagnosticsStatusNotification(UploadFailed) failed: %v", notifyErr)
		}
		return &ocpp16.GetDiagnosticsResponse{}, nil
	}

	if s.ftp == nil {
		s.log.Error("No FTP client configured for diagnostics upload")
		if notifyErr := s.SendDiagnosticsStatusNotification(ctx, ocpp16.DiagnosticsStatusUploadFailed); notifyErr != nil {
			s.log.Errorf("DiagnosticsStatusNotification(UploadFailed) failed: %v", notifyErr)
		}
		return &ocpp16.GetDiagnosticsResponse{}, nil
	}

	host := parsed.Host
	user := parsed.User.Username()
	password, _ := parsed.User.Password()

	reader, err := s.collectLogFiles()
	if err != nil {
		s.log.Errorf("Failed to collect log files: %v", err)
		if notifyErr := s.SendDiagnosticsStatusNotification(ctx, ocpp16.DiagnosticsStatusUploadFailed); notifyErr != nil {
			s.log.Errorf("DiagnosticsStatusNotification(UploadFailed) failed: %v", notifyErr)
		}
		return nil, fmt.Errorf("diagnostics collection failed")
	}

	uploadFailed := func() (*ocpp16.GetDiagnosticsResponse, error) {
		if notifyErr := s.SendDiagnosticsStatusNotification(ctx, ocpp16.DiagnosticsStatusUploadFailed); notifyErr != nil {
			s.log.Errorf("DiagnosticsStatusNotification(UploadFailed) failed: %v", notifyErr)
		}
		return nil, fmt.Errorf("diagnostics upload failed")
	}

	code, err := s.ftp.Access(host, user, password)
	if err != nil || code != 220 {
		s.log.Warnf("FTP access to %s failed (code %d): %v", host, code, err)
		return uploadFailed()
	}
	defer s.ftp.Close()

	s.ftp.TrackProgress(func(bytes int64) {
		if notifyErr := s.SendDiagnosticsStatusNotification(ctx, ocpp16.DiagnosticsStatusUploading); notifyErr != nil {
			s.log.Debugf("DiagnosticsStatusNotification(Uploading) failed: %v", notifyErr)
		}
	})

	fileName := fmt.Sprintf("%s-%s-%s.tar.gz",
		s.diagCfg.ArchiveName,
		s.station.ID(),
		s.station.Clock().Now().Format("20060102150405"))

	code, err = s.ftp.UploadFrom(reader, fileName)
	if err != nil || code != 226 {
		s.log.Warnf("FTP upload of %s failed (code %d): %v", fileName, code, err)
		return uploadFailed()
	}

	if notifyErr := s.SendDiagnosticsStatusNotification(ctx, ocpp16.DiagnosticsStatusUploaded); notifyErr != nil {
		s.log.Errorf("DiagnosticsStatusNotification(Uploaded) failed: %v", notifyErr)
	}
	return &ocpp16.GetDiagnosticsResponse{FileName: &fileName}, nil
}

// collectLogFiles 枚举有限数量的日志文件并拼接为一个读取器
func (s *Service) collectLogFiles() (io.Reader, error) {
	const maxFiles = 10

	entries, err := os.ReadDir(s.diagCfg.LogDir)
	if err != nil {
		// 无日志目录时上传空内容
		return strings.NewReader(""), nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	if len(names) > maxFiles {
		names = names[len(names)-maxFiles:]
	}

	var readers []io.Reader
	for _, name := range names {
		file, err := os.Open(filepath.Join(s.diagCfg.LogDir, name))
		if err != nil {
			continue
		}
		readers = append(readers, file)
	}
	if len(readers) == 0 {
		return strings.NewReader(""), nil
	}
	return io.MultiReader(readers...), nil
}

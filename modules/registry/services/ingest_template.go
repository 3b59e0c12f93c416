package services

import (
	"github.com/go-faster/errors"

	"github.com/sirta-dev/sirta/pkg/excel"
)

// Column headers recognized by the ingest engine. Sheets may carry extra
// columns; they are ignored. The required subsets fail the whole batch at load
// time when absent.
const (
	headerRUC           = "RUC"
	headerResolution    = "RESOLUCION"
	headerProcedure     = "TIPO_TRAMITE"
	headerIssueDate     = "FECHA_EMISION"
	headerValidityStart = "FECHA_INICIO"
	headerValidityYears = "ANIOS_VIGENCIA"
	headerValidityEnd   = "FECHA_FIN"
	headerState         = "ESTADO"
	headerParentNumber  = "RESOLUCION_PADRE"
	headerPlates        = "PLACAS"

	headerRouteCode   = "CODIGO_RUTA"
	headerOrigin      = "ORIGEN"
	headerDestination = "DESTINO"
	headerItinerary   = "ITINERARIO"
	headerFrequency   = "FRECUENCIA"
	headerRouteType   = "TIPO_RUTA"
	headerServiceType = "TIPO_SERVICIO"
)

var (
	resolutionHeaders = []string{
		headerRUC, headerResolution, headerProcedure, headerIssueDate,
		headerValidityStart, headerValidityYears, headerValidityEnd,
		headerState, headerParentNumber, headerPlates,
	}
	resolutionRequired = []string{
		headerRUC, headerResolution, headerProcedure, headerValidityStart, headerState,
	}

	routeHeaders = []string{
		headerRUC, headerResolution, headerRouteCode, headerOrigin,
		headerDestination, headerItinerary, headerFrequency,
		headerRouteType, headerServiceType, headerState,
	}
	routeRequired = []string{
		headerRUC, headerResolution, headerRouteCode, headerOrigin,
		headerDestination, headerFrequency,
	}
)

// GenerateTemplate returns an empty workbook carrying the exact header set the
// engine expects for the given batch kind.
func (s *IngestService) GenerateTemplate(kind BatchKind) ([]byte, error) {
	switch kind {
	case BatchResolutions:
		return excel.WriteTemplate("RESOLUCIONES", resolutionHeaders)
	case BatchRoutes:
		return excel.WriteTemplate("RUTAS", routeHeaders)
	default:
		return nil, errors.Errorf("unknown batch kind %q", kind)
	}
}

package benchmark

// Reads every row of the submissions table
const SimpleQuery = "SELECT * FROM dbo.Submissions"

// Ranks sales people by total sales, with a windowed average and a correlated count
const ComplexQuery = `
WITH CTE_Sales AS (
    SELECT
        SalesPersonID,
        SUM(SalesAmount) AS TotalSales,
        COUNT(*) AS NumberOfSales
    FROM
        SalesTable
    GROUP BY
        SalesPersonID
),
CTE_Rank AS (
    SELECT
        SalesPersonID,
        TotalSales,
        NumberOfSales,
        RANK() OVER (ORDER BY TotalSales DESC) AS SalesRank
    FROM
        CTE_Sales
)
SELECT
    CTE_Rank.SalesPersonID,
    CTE_Rank.TotalSales,
    CTE_Rank.NumberOfSales,
    CTE_Rank.SalesRank,
    (SELECT COUNT(*) FROM SalesTable WHERE SalesAmount > 1000) AS HighValueSalesCount,
    AVG(TotalSales) OVER() AS AverageSalesAmount,
    CASE
        WHEN TotalSales > 10000 THEN 'High Performer'
        ELSE 'Regular Performer'
    END AS PerformanceCategory
FROM
    CTE_Rank
WHERE
    SalesRank <= 10
ORDER BY
    TotalSales DESC;
`

// The query texts sent by the scenarios. Values are opaque to the harness.
type Queries struct {
	Simple  string `yaml:"simple"`
	Complex string `yaml:"complex"`
}

func DefaultQueries() Queries {
	return Queries{Simple: SimpleQuery, Complex: ComplexQuery}
}

// Fills the empty texts with the defaults
func (q Queries) WithDefaults() Queries {
	if q.Simple == "" {
		q.Simple = SimpleQuery
	}
	if q.Complex == "" {
		q.Complex = ComplexQuery
	}
	return q
}

// Returns the text for a query complexity
func (q Queries) Text(c Complexity) string {
	if c == Complex {
		return q.Complex
	}
	return q.Simple
}

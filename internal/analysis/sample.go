package analysis

// SampleReport is a built-in blood report used when no PDF is uploaded.
const SampleReport = `COMPLETE BLOOD COUNT (CBC) AND METABOLIC PANEL
Laboratory: City Diagnostics Laboratory
Specimen: Whole blood / Serum        Collected: Fasting

Test                         Result      Unit          Reference Range
Hemoglobin                   11.2 L      g/dL          12.0 - 15.5
Hematocrit                   34.5 L      %             36.0 - 46.0
RBC Count                    4.1         million/uL    4.0 - 5.2
WBC Count                    11.8 H      thousand/uL   4.5 - 11.0
Platelet Count               265         thousand/uL   150 - 400
MCV                          78 L        fL            80 - 100
Neutrophils                  72 H        %             40 - 70
Lymphocytes                  20          %             20 - 40

Fasting Glucose              118 H       mg/dL         70 - 99
HbA1c                        6.1 H       %             4.0 - 5.6
Total Cholesterol            232 H       mg/dL         < 200
LDL Cholesterol              158 H       mg/dL         < 100
HDL Cholesterol              38 L        mg/dL         > 40
Triglycerides                190 H       mg/dL         < 150
Creatinine                   0.9         mg/dL         0.6 - 1.1
ALT (SGPT)                   42 H        U/L           7 - 35
TSH                          2.4         mIU/L         0.4 - 4.0
Vitamin D (25-OH)            18 L        ng/mL         30 - 100
Serum Ferritin               12 L        ng/mL         15 - 150

Remarks: Mild microcytic anemia. Elevated fasting glucose and HbA1c in the
prediabetic range. Dyslipidemia. Low vitamin D. Clinical correlation advised.`

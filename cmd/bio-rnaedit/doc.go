// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
bio-rnaedit profiles RNA editing candidates in aligned RNA-seq reads.

Subcommands:

  analyze   bampath fapath outpath    per-position base-composition table
  annotate  rnapath genomicpath outpath
                                      fill the g* columns from a genomic table
  index     tablepath...              editing indices of one or more tables
  checksum  tablepath                 per-region digest of a table
  visualize tablepath                 histogram or Manhattan plot of Frequency

Output tables ending in .gz are bgzip-compressed; gzipped inputs are detected
from the .gz extension.
*/
package main
